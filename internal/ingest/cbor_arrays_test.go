package ingest

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"canaswarm-vision-go/internal/types"
)

func multiDim(rows, cols int, typed cbor.Tag) cbor.Tag {
	return cbor.Tag{
		Number:  tagMultiDimArray,
		Content: []any{[]any{rows, cols}, typed},
	}
}

func TestDecodeDepthMapMillimetres(t *testing.T) {
	buf := make([]byte, 8)
	for i, mm := range []uint16{0, 1500, 2250, 65535} {
		binary.LittleEndian.PutUint16(buf[i*2:], mm)
	}

	got, err := decodeDepthMap(multiDim(2, 2, cbor.Tag{Number: tagUint16LE, Content: buf}))
	if err != nil {
		t.Fatalf("decodeDepthMap error: %v", err)
	}

	want := &types.DepthMap{Rows: 2, Cols: 2, Values: []float32{0, 1.5, 2.25, 65.535}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decodeDepthMap mismatch: got %#v want %#v", got, want)
	}
}

func TestDecodeDepthMapFloat64(t *testing.T) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(3.5))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(7.25))

	got, err := decodeDepthMap(multiDim(1, 2, cbor.Tag{Number: tagFloat64LE, Content: buf}))
	if err != nil {
		t.Fatalf("decodeDepthMap error: %v", err)
	}
	if got.At(0, 0) != 3.5 || got.At(0, 1) != 7.25 {
		t.Fatalf("unexpected values: %v", got.Values)
	}
}

func TestEncodeDepthMapRoundTrip(t *testing.T) {
	in := &types.DepthMap{Rows: 2, Cols: 2, Values: []float32{0.5, 1, 12.75, float32(math.NaN())}}

	data, err := cbor.Marshal(EncodeDepthMap(in))
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var decoded any
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	got, err := decodeDepthMap(decoded)
	if err != nil {
		t.Fatalf("decodeDepthMap error: %v", err)
	}
	if got.Rows != 2 || got.Cols != 2 {
		t.Fatalf("unexpected shape %dx%d", got.Rows, got.Cols)
	}
	for i := 0; i < 3; i++ {
		if got.Values[i] != in.Values[i] {
			t.Fatalf("value %d: got %v want %v", i, got.Values[i], in.Values[i])
		}
	}
	if !math.IsNaN(float64(got.Values[3])) {
		t.Fatalf("NaN hole lost: %v", got.Values[3])
	}
}

func TestDecodeDepthMapErrors(t *testing.T) {
	if got, err := decodeDepthMap(nil); got != nil || err != nil {
		t.Fatalf("nil value should decode to nil, got %v %v", got, err)
	}

	_, err := decodeDepthMap(multiDim(2, 2, cbor.Tag{Number: tagFloat32LE, Content: make([]byte, 12)}))
	if !errors.Is(err, errDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}

	if _, err := decodeDepthMap(multiDim(1, 1, cbor.Tag{Number: 64, Content: []byte{1}})); err == nil {
		t.Fatalf("uint8 typed array should be rejected")
	}
	if _, err := decodeDepthMap(multiDim(0, 4, cbor.Tag{Number: tagFloat32LE, Content: nil})); err == nil {
		t.Fatalf("empty shape should be rejected")
	}
	if _, err := decodeDepthMap(cbor.Tag{Number: 41, Content: []any{}}); err == nil {
		t.Fatalf("wrong tag should be rejected")
	}
}
