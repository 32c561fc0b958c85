// Package jsonutil provides helpers for picking fields out of loosely
// structured JSON emitted by agent CLIs.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Object is a decoded JSON object.
type Object = map[string]interface{}

// UnmarshalWithContext unmarshals JSON data into v and wraps any error
// with the provided context message.
func UnmarshalWithContext(data []byte, v interface{}, context string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}
	return nil
}

// UnmarshalLine unmarshals a single JSON line (string) into v.
// Returns an error if the line is empty or cannot be parsed.
func UnmarshalLine(line string, v interface{}) error {
	if line == "" {
		return fmt.Errorf("empty JSON line")
	}
	return json.Unmarshal([]byte(line), v)
}

// UnmarshalLineSafe unmarshals a single JSON line (string) into v.
// Returns false if the line is empty or cannot be parsed, true on success.
func UnmarshalLineSafe(line string, v interface{}) bool {
	return UnmarshalLine(line, v) == nil
}

// Objects decodes every line of a JSON-lines stream that holds a JSON object.
// Blank lines, log noise and non-object values are skipped.
func Objects(stream string) []Object {
	var out []Object
	for _, line := range strings.Split(stream, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var obj Object
		if UnmarshalLineSafe(line, &obj) {
			out = append(out, obj)
		}
	}
	return out
}

// GetString safely extracts a string value from m.
// Returns the value if it's a string, otherwise returns empty string.
func GetString(m Object, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

// GetObject returns the nested object stored under key, or nil.
func GetObject(m Object, key string) Object {
	if val, ok := m[key].(map[string]interface{}); ok {
		return val
	}
	return nil
}

// GetBool reports the boolean stored under key; absent or non-bool is false.
func GetBool(m Object, key string) bool {
	val, _ := m[key].(bool)
	return val
}

// GetFloat returns a pointer to the number stored under key, or nil.
func GetFloat(m Object, key string) *float64 {
	if val, ok := m[key].(float64); ok {
		return &val
	}
	return nil
}

// GetInt returns a pointer to the whole number stored under key, or nil.
func GetInt(m Object, key string) *int {
	val, ok := m[key].(float64)
	if !ok || val != float64(int64(val)) {
		return nil
	}
	n := int(val)
	return &n
}

// FirstString returns the first non-blank string found under keys, in order.
// String arrays are joined with newlines.
func FirstString(m Object, keys ...string) string {
	for _, key := range keys {
		switch val := m[key].(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return val
			}
		case []interface{}:
			var parts []string
			for _, item := range val {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "\n")
			}
		}
	}
	return ""
}

// ToString converts an interface{} value to a string representation.
// Handles string, float64 (formatted as integer), bool, and other types.
func ToString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case map[string]interface{}:
		if msg := FirstString(val, "message", "error", "text"); msg != "" {
			return msg
		}
		data, _ := json.Marshal(val)
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}
