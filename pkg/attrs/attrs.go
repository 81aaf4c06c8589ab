// Package attrs works with slog-style key/value attribute slices
// ([key1, value1, key2, value2, ...]).
package attrs

import (
	"fmt"
	"log/slog"
)

// ExtractString returns the string value for key, or "" when the key is
// absent or its value is not a string.
func ExtractString(attrs []any, key string) string {
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(string); ok {
			return v
		}
	}
	return ""
}

// ToStringMap renders every key/value pair as strings. Values implementing
// fmt.Stringer use String; slog.Attr entries are flattened. A trailing key
// without a value is dropped.
func ToStringMap(attrs []any) map[string]string {
	out := make(map[string]string, len(attrs)/2)
	for i := 0; i < len(attrs); i++ {
		if a, ok := attrs[i].(slog.Attr); ok {
			out[a.Key] = a.Value.String()
			continue
		}
		k, ok := attrs[i].(string)
		if !ok || i+1 >= len(attrs) {
			continue
		}
		i++
		switch v := attrs[i].(type) {
		case string:
			out[k] = v
		case fmt.Stringer:
			out[k] = v.String()
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
