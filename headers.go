package requests

import (
	"sort"

	"github.com/fpelliccioni/requests/wire"
)

// Headers maps canonical field names to their values. Values are kept
// whole, one per received field line; Set-Cookie in particular is never
// merged.
type Headers map[string][]string

// NewHeaders builds Headers from a plain map, canonicalizing keys.
func NewHeaders(initial map[string][]string) Headers {
	h := make(Headers, len(initial))
	for k, values := range initial {
		for _, v := range values {
			h.Add(k, v)
		}
	}
	return h
}

// Get returns the first value of the field, treating it as a singleton.
func (h Headers) Get(key string) (string, bool) {
	v, ok := h[CanonicalFieldName(key)]
	if !ok || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// Values returns every value carried under the field name.
func (h Headers) Values(key string) []string {
	return h[CanonicalFieldName(key)]
}

// Set overwrites the field with a single value.
func (h Headers) Set(key, value string) {
	h[CanonicalFieldName(key)] = []string{value}
}

// Add appends one more value line for the field.
func (h Headers) Add(key, value string) {
	key = CanonicalFieldName(key)
	h[key] = append(h[key], value)
}

func (h Headers) Del(key string) {
	delete(h, CanonicalFieldName(key))
}

func (h Headers) Clone() Headers {
	clone := make(Headers, len(h))
	for k, v := range h {
		vs := make([]string, len(v))
		copy(vs, v)
		clone[k] = vs
	}
	return clone
}

// fields flattens into wire fields, one per value line, in stable key
// order.
func (h Headers) fields() []wire.Field {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]wire.Field, 0, len(h))
	for _, k := range keys {
		for _, v := range h[k] {
			fields = append(fields, wire.Field{Name: k, Value: v})
		}
	}
	return fields
}

func headersFrom(fields []wire.Field) Headers {
	h := make(Headers, len(fields))
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

// CanonicalFieldName uppercases the first letter of each dash-separated
// word: "content-type" becomes "Content-Type".
func CanonicalFieldName(s string) string {
	const capitalDiff = 'a' - 'A'
	b := []byte(s)
	upper := true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			c -= capitalDiff
		} else if !upper && 'A' <= c && c <= 'Z' {
			c += capitalDiff
		}
		b[i] = c
		upper = c == '-'
	}
	return string(b)
}
