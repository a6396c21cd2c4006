// Package output records raw ingest traffic and converts decoded CBOR into
// JSON-friendly values.
package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rawLogMagic = "CANAVIS1"

// maxRecordSize bounds a single record when reading; perception frames with
// a full-resolution depth map stay well below it.
const maxRecordSize = 64 << 20

var ErrBadMagic = errors.New("not a raw log")

type RawLogWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	now  func() time.Time
	path string
}

func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(rawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		f:    f,
		w:    w,
		now:  time.Now,
		path: filename,
	}, nil
}

func (r *RawLogWriter) Path() string { return r.path }

// Record appends one message framed as an 8-byte receive time in unix
// nanoseconds and a 4-byte length, both little endian.
func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(r.now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

type RawRecord struct {
	Received time.Time
	Payload  []byte
}

type RawLogReader struct {
	r *bufio.Reader
}

// NewRawLogReader checks the magic and positions the reader at the first
// record.
func NewRawLogReader(r io.Reader) (*RawLogReader, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(header) != rawLogMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, string(header))
	}
	return &RawLogReader{r: br}, nil
}

// Next returns the next record, or io.EOF after the last complete one. A
// record truncated by a crash also ends the log.
func (l *RawLogReader) Next() (RawRecord, error) {
	var meta [12]byte
	if _, err := io.ReadFull(l.r, meta[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return RawRecord{}, io.EOF
		}
		return RawRecord{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(meta[:8]))
	size := binary.LittleEndian.Uint32(meta[8:12])
	if size > maxRecordSize {
		return RawRecord{}, fmt.Errorf("record size %d exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(l.r, payload); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return RawRecord{}, io.EOF
		}
		return RawRecord{}, err
	}
	return RawRecord{Received: time.Unix(0, ts), Payload: payload}, nil
}
