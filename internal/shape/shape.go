// Package shape inspects loosely typed JSON values sent by capture clients.
package shape

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// denialKeys are checked in order for a human-readable refusal reason.
var denialKeys = []string{"status", "error", "reason"}

// denialFlags mark a refusal without a reason.
var denialFlags = []string{"denied", "permissionDenied"}

var refusalWords = []string{"denied", "blocked", "refused", "not allowed"}

// DefaultDenialReason is used when a client flags a refusal without text.
const DefaultDenialReason = "permission denied"

// DenialReason reports whether obj carries a denial/status marker and
// returns its reason.
func DenialReason(obj map[string]any) (string, bool) {
	for _, key := range denialKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	for _, key := range denialFlags {
		if b, ok := obj[key].(bool); ok && b {
			return DefaultDenialReason, true
		}
	}
	return "", false
}

// IsRefusalText reports whether a bare string signals that the user refused
// a permission prompt.
func IsRefusalText(s string) bool {
	lower := strings.ToLower(s)
	for _, w := range refusalWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Decode parses raw into a generic value with numbers preserved as
// json.Number. Absent, empty or null input yields (nil, true).
func Decode(raw json.RawMessage) (any, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, true
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// IsAbsent reports whether raw is missing or a JSON falsy marker the capture
// clients use for "nothing": null, false or "".
func IsAbsent(raw json.RawMessage) bool {
	v, ok := Decode(raw)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

// Number converts a decoded JSON number to float64. Strings are not
// accepted.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	}
	return 0, false
}

// Text renders an opaque scalar as text: strings as-is, numbers and bools
// as their literal, anything else as "".
func Text(raw json.RawMessage) string {
	v, ok := Decode(raw)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Compact returns raw without insignificant whitespace. Invalid JSON is
// returned unchanged.
func Compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
