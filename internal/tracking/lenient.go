package tracking

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Fields decodes a JSON object into its raw members. Lookups through
// Get match names case-insensitively, like encoding/json does for structs.
type Fields map[string]json.RawMessage

// DecodeFields decodes b, which must be a JSON object.
func DecodeFields(b []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// Get returns the member called name. An exact match wins over a
// case-insensitive one.
func (f Fields) Get(name string) json.RawMessage {
	if v, ok := f[name]; ok {
		return v
	}
	for k, v := range f {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// LenientString reads a scalar member as text. Strings are unquoted, numbers
// and booleans keep their literal form, and null, objects and arrays read as "".
func LenientString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case 't', 'f':
		return string(raw)
	case 'n', '{', '[':
		return ""
	default:
		if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
			return ""
		}
		return string(raw)
	}
}

// LenientTimestamp reads a timestamp member. A string is returned as is; a
// number is Unix milliseconds and is rewritten to the "/Date(ms)/" form that
// ParseTimestamp accepts.
func LenientTimestamp(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return LenientString(raw)
	}
	ms, ok := LenientNumber(raw)
	if !ok {
		return ""
	}
	return "/Date(" + strconv.FormatInt(ms, 10) + ")/"
}

// LenientNumber reads an integral member given as a JSON number (2 or 2.0)
// or a numeric string ("2").
func LenientNumber(raw json.RawMessage) (int64, bool) {
	text := LenientString(raw)
	if text == "" {
		return 0, false
	}
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// LenientStrings reads a list member. A lone string becomes a one-element
// list; non-string elements of an array are skipped; anything else is nil.
func LenientStrings(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		if s := LenientString(raw); s != "" {
			return []string{s}
		}
		return nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			item = bytes.TrimSpace(item)
			if len(item) == 0 || item[0] != '"' {
				continue
			}
			out = append(out, LenientString(item))
		}
		return out
	default:
		return nil
	}
}
