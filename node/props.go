package node

import (
	"encoding/json"
	"strconv"
)

// StringProp reads a string-valued entry from a node's property bag,
// returning def when the key is absent or not a string.
func StringProp(props map[string]any, key, def string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return def
}

// IntProp reads an integer-valued entry from a node's property bag,
// tolerating the numeric representations the supported document formats
// produce: json.Number from the JSON decoder, int from yaml.v3, float64
// from plain encoding/json decoding, and numeric strings.
func IntProp(props map[string]any, key string, def int) int {
	switch v := props[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// BoolProp reads a bool-valued entry from a node's property bag,
// returning def when the key is absent or not a bool.
func BoolProp(props map[string]any, key string, def bool) bool {
	if v, ok := props[key].(bool); ok {
		return v
	}
	return def
}
