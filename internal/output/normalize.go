package output

import (
	"encoding/base64"
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// NormalizeJSONValue rewrites a value decoded from CBOR into one that
// encoding/json accepts: map keys become strings, byte strings become
// base64, tags become {"tag": n, "value": ...} and non-finite floats
// become nil.
func NormalizeJSONValue(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = NormalizeJSONValue(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = NormalizeJSONValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = NormalizeJSONValue(val)
		}
		return out
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case cbor.Tag:
		return map[string]any{"tag": t.Number, "value": NormalizeJSONValue(t.Content)}
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil
		}
		return t
	default:
		return v
	}
}
