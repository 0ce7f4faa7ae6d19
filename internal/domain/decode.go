package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// fields is a decoded JSON object whose logical fields are read through
// ordered lists of candidate wire keys.
type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// str returns the first non-empty value among keys. Numbers are returned in
// their literal form so numeric ids decode the same as string ids.
func (f fields) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] == '"' {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			continue
		}
		if raw[0] == '{' || raw[0] == '[' {
			continue
		}
		return string(raw)
	}
	return ""
}

// dec returns the first value among keys that parses as a decimal.
func (f fields) dec(keys ...string) decimal.NullDecimal {
	for _, k := range keys {
		if s := f.str(k); s != "" {
			if d, err := decimal.NewFromString(s); err == nil {
				return decimal.NewNullDecimal(d)
			}
		}
	}
	return decimal.NullDecimal{}
}

// boolean returns the first value among keys that parses as a bool.
func (f fields) boolean(keys ...string) (value, ok bool) {
	for _, k := range keys {
		if s := f.str(k); s != "" {
			if b, err := strconv.ParseBool(s); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// nested returns the object stored under key, or nil.
func (f fields) nested(key string) fields {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var n fields
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return n
}
