// Package jsonutil compares JSON payload values regardless of how they were
// produced. Values read back from jsonb arrive as float64/map[string]any,
// while values set in memory may be ints or typed structs; Normalize maps both
// onto one canonical form so the diff engine sees them as equal.
package jsonutil

import (
	"encoding/json"
	"reflect"
)

// Normalize converts a value to its canonical decoded-JSON form: numbers
// become float64, structs and typed maps become map[string]any, typed slices
// become []any. Values that cannot be marshaled are returned unchanged.
func Normalize(value any) any {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case string, bool, float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Normalize(item)
		}
		return out
	}

	// Marshal anything else (structs, typed maps/slices) through JSON.
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return value
	}
	return decoded
}

// Equal reports whether two values are equal after normalization.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// AsList normalizes a value into a []any, returning nil for non-list values.
func AsList(value any) []any {
	normalized := Normalize(value)
	list, ok := normalized.([]any)
	if !ok {
		return nil
	}
	return list
}
