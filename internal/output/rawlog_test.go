package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestRawLogRoundTrip(t *testing.T) {
	w, err := NewRawLogWriter(t.TempDir(), "raw_cbor")
	if err != nil {
		t.Fatalf("NewRawLogWriter: %v", err)
	}
	stamp := time.Unix(1752157800, 42)
	w.now = func() time.Time { return stamp }

	payloads := [][]byte{[]byte("first"), {}, []byte("third")}
	for _, p := range payloads {
		if err := w.Record(p); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Record([]byte("late")); err == nil {
		t.Fatalf("Record after Close should fail")
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	r, err := NewRawLogReader(f)
	if err != nil {
		t.Fatalf("NewRawLogReader: %v", err)
	}
	for i, want := range payloads {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !bytes.Equal(rec.Payload, want) {
			t.Fatalf("record %d payload = %q, want %q", i, rec.Payload, want)
		}
		if !rec.Received.Equal(stamp) {
			t.Fatalf("record %d time = %v", i, rec.Received)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRawLogReaderTruncatedRecord(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(rawLogMagic)
	buf.Write([]byte{1, 0, 0, 0, 0, 0, 0, 0, 10, 0, 0, 0})
	buf.WriteString("short")

	r, err := NewRawLogReader(&buf)
	if err != nil {
		t.Fatalf("NewRawLogReader: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF on truncated record, got %v", err)
	}
}

func TestRawLogReaderBadMagic(t *testing.T) {
	_, err := NewRawLogReader(bytes.NewReader([]byte("OTHERLOG")))
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestNormalizeJSONValue(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{
		"frame_id": "f1",
		"robot":    map[string]any{"velocity_m_s": 1.2},
		"raw":      []byte{1, 2, 3},
		"depth":    cbor.Tag{Number: 40, Content: []any{[]any{1, 1}, []byte{0, 0, 128, 63}}},
		"bad":      math.Inf(1),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded any
	if err := cbor.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	data, err := json.Marshal(NormalizeJSONValue(decoded))
	if err != nil {
		t.Fatalf("normalised value is not JSON-encodable: %v", err)
	}

	var back map[string]any
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal json: %v", err)
	}
	if back["frame_id"] != "f1" || back["raw"] != "AQID" || back["bad"] != nil {
		t.Fatalf("unexpected normalised value: %s", data)
	}
	depth, ok := back["depth"].(map[string]any)
	if !ok || depth["tag"] != float64(40) {
		t.Fatalf("unexpected tag encoding: %s", data)
	}
}
