package helpers

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DecodeJSON decodes data keeping numbers as json.Number so millisecond
// timestamps and ids survive a decode/encode round trip unchanged.
func DecodeJSON(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

// AsObject coerces a panel value into an object. Panels ship nested settings
// either as objects or as JSON-encoded strings; anything else (including a
// string that does not decode to an object) becomes an empty object.
func AsObject(value any) map[string]any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return map[string]any{}
		}
		return v
	case string:
		return decodeObject([]byte(v))
	case []byte:
		return decodeObject(v)
	case json.RawMessage:
		return decodeObject(v)
	default:
		return map[string]any{}
	}
}

func decodeObject(data []byte) map[string]any {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return map[string]any{}
	}
	var out map[string]any
	if err := DecodeJSON(trimmed, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// AsList coerces a panel value into a list; JSON-encoded lists are decoded.
func AsList(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, 0, len(v))
		for _, s := range v {
			out = append(out, s)
		}
		return out
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "[") {
			return nil
		}
		var out []any
		if err := DecodeJSON([]byte(trimmed), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// FirstNonEmpty returns the first candidate that resolves to a non-empty
// string. Lists (real or JSON-encoded) resolve to their first non-empty
// string item, strings are trimmed, non-zero numbers and true are formatted.
// The result is "" when no candidate resolves.
func FirstNonEmpty(candidates ...any) string {
	for _, candidate := range candidates {
		if s, ok := resolveCandidate(candidate); ok {
			return s
		}
	}
	return ""
}

func resolveCandidate(candidate any) (string, bool) {
	switch v := candidate.(type) {
	case nil:
		return "", false
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return "", false
		}
		if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var parsed any
			if err := DecodeJSON([]byte(trimmed), &parsed); err == nil {
				if list, ok := parsed.([]any); ok {
					return firstString(list)
				}
				return "", false
			}
		}
		return trimmed, true
	case []any:
		return firstString(v)
	case []string:
		for _, item := range v {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				return trimmed, true
			}
		}
		return "", false
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return "", false
		}
		return v.String(), true
	case float64:
		if v == 0 {
			return "", false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		if v == 0 {
			return "", false
		}
		return strconv.Itoa(v), true
	case int64:
		if v == 0 {
			return "", false
		}
		return strconv.FormatInt(v, 10), true
	case bool:
		if !v {
			return "", false
		}
		return "true", true
	default:
		return "", false
	}
}

func firstString(items []any) (string, bool) {
	for _, item := range items {
		if s, ok := item.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed, true
			}
		}
	}
	return "", false
}

// ToInt64 converts a loosely typed number, falling back to def when the value
// is missing or unparseable.
func ToInt64(value any, def int64) int64 {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return floatToInt(f, def)
		}
	case float64:
		return floatToInt(v, def)
	case float32:
		return floatToInt(float64(v), def)
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case string:
		trimmed := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return floatToInt(f, def)
		}
	}
	return def
}

func floatToInt(f float64, def int64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return def
	}
	return int64(f)
}

// ToString renders scalar panel values as strings; other values become "".
func ToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
