package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// ErrNotJSON indicates a body that does not hold a JSON document.
var ErrNotJSON = errors.New("body is not valid JSON")

// JSON decodes the body into a generic JSON value. An empty body decodes to
// nil without error.
func (b Body) JSON() (any, error) {
	if b.IsEmpty() {
		return nil, nil
	}
	return DecodeJSON(b.data)
}

// DecodeJSON decodes a single JSON document into nil, bool, int64, uint64,
// float64, string, []any or map[string]any. Integral numbers stay integers
// when they fit in 64 bits so identity transforms keep them exact.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after document", ErrNotJSON)
	}
	return NormalizeNumbers(v), nil
}

// NormalizeNumbers replaces every json.Number in v with int64, uint64 or
// float64, in that order of preference. Maps and slices are updated in
// place.
func NormalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		return numberValue(val)
	case map[string]any:
		for k, item := range val {
			val[k] = NormalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = NormalizeNumbers(item)
		}
		return val
	default:
		return val
	}
}

func numberValue(n json.Number) any {
	s := n.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		// Out of float64 range: keep the literal text so encoding is exact.
		return n
	}
	return f
}

// EncodeJSON serializes a generic JSON value without HTML escaping.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DeepCopy copies maps and slices of a generic JSON value recursively.
// Scalars are returned as is.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return DeepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	default:
		return val
	}
}

// DeepCopyMap copies a map[string]any recursively. A nil map stays nil.
func DeepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = DeepCopy(v)
	}
	return out
}

func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
