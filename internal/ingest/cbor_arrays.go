package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"

	"canaswarm-vision-go/internal/types"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint16LE      = 69
	tagFloat32LE     = 85
	tagFloat64LE     = 86
)

var errDimensionMismatch = errors.New("dimension mismatch")

// decodeDepthMap decodes a row-major tag 40 array. Float elements are
// meters; uint16 elements are millimetres with 0 meaning no return.
func decodeDepthMap(value any) (*types.DepthMap, error) {
	if value == nil {
		return nil, nil
	}
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40, got %T", value)
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return nil, fmt.Errorf("invalid multidim dimensions")
	}
	rows, err := toInt(dimsRaw[0])
	if err != nil {
		return nil, err
	}
	cols, err := toInt(dimsRaw[1])
	if err != nil {
		return nil, err
	}
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("invalid depth map shape %dx%d", rows, cols)
	}

	values, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, err
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %dx%d with %d values", errDimensionMismatch, rows, cols, len(values))
	}
	return &types.DepthMap{Rows: rows, Cols: cols, Values: values}, nil
}

func decodeTypedArray(value any) ([]float32, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, fmt.Errorf("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint16LE:
		return millimetresToMeters(data), nil
	case tagFloat32LE:
		return bytesToFloat32(data), nil
	case tagFloat64LE:
		return bytesToFloat64(data), nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func millimetresToMeters(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(binary.LittleEndian.Uint16(data[i*2:i*2+2])) / 1000
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return out
}

func bytesToFloat64(data []byte) []float32 {
	out := make([]float32, len(data)/8)
	for i := range out {
		out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8 : i*8+8])))
	}
	return out
}

// EncodeDepthMap is the inverse of decodeDepthMap for float32 maps. The
// simulator and tests use it to build wire frames.
func EncodeDepthMap(d *types.DepthMap) cbor.Tag {
	buf := make([]byte, 4*len(d.Values))
	for i, v := range d.Values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{d.Rows, d.Cols},
			cbor.Tag{Number: tagFloat32LE, Content: buf},
		},
	}
}
