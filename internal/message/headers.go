package message

import (
	"net/http"
	"slices"
	"strings"
)

// Headers is a case-insensitive multi-value header map that keeps insertion
// order. Names are stored lowercase.
type Headers struct {
	names  []string
	values map[string][]string
}

// NewHeaders builds headers from alternating name/value pairs. A trailing
// name without a value is ignored.
func NewHeaders(pairs ...string) Headers {
	var h Headers
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// HeadersFromHTTP copies an http.Header. Names are sorted so the result is
// deterministic.
func HeadersFromHTTP(src http.Header) Headers {
	var h Headers
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, v := range src[name] {
			h.Add(name, v)
		}
	}
	return h
}

// ToHTTP returns the headers as an http.Header.
func (h Headers) ToHTTP() http.Header {
	out := make(http.Header, len(h.names))
	for _, name := range h.names {
		out[http.CanonicalHeaderKey(name)] = slices.Clone(h.values[name])
	}
	return out
}

// Get returns the first value for name, or "".
func (h Headers) Get(name string) string {
	vs := h.values[strings.ToLower(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Values returns a copy of all values for name.
func (h Headers) Values(name string) []string {
	return slices.Clone(h.values[strings.ToLower(name)])
}

// Has reports whether name is present.
func (h Headers) Has(name string) bool {
	_, ok := h.values[strings.ToLower(name)]
	return ok
}

// Names returns the lowercase header names in insertion order.
func (h Headers) Names() []string {
	return slices.Clone(h.names)
}

// Len returns the number of distinct header names.
func (h Headers) Len() int {
	return len(h.names)
}

// Add appends a value to name.
func (h *Headers) Add(name, value string) {
	key := strings.ToLower(name)
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	h.values[key] = append(h.values[key], value)
}

// Set replaces all values of name.
func (h *Headers) Set(name string, values ...string) {
	key := strings.ToLower(name)
	if h.values == nil {
		h.values = make(map[string][]string)
	}
	if _, ok := h.values[key]; !ok {
		h.names = append(h.names, key)
	}
	h.values[key] = slices.Clone(values)
}

// Del removes name.
func (h *Headers) Del(name string) {
	key := strings.ToLower(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	h.names = slices.DeleteFunc(h.names, func(n string) bool { return n == key })
}

// Clone returns a deep copy.
func (h Headers) Clone() Headers {
	out := Headers{
		names:  slices.Clone(h.names),
		values: make(map[string][]string, len(h.values)),
	}
	for k, v := range h.values {
		out.values[k] = slices.Clone(v)
	}
	return out
}

// Equal reports whether both header sets have the same names, order and values.
func (h Headers) Equal(other Headers) bool {
	if !slices.Equal(h.names, other.names) {
		return false
	}
	for _, name := range h.names {
		if !slices.Equal(h.values[name], other.values[name]) {
			return false
		}
	}
	return true
}

// First returns a name to first-value map.
func (h Headers) First() map[string]string {
	out := make(map[string]string, len(h.names))
	for _, name := range h.names {
		if vs := h.values[name]; len(vs) > 0 {
			out[name] = vs[0]
		}
	}
	return out
}

// All returns a name to all-values map.
func (h Headers) All() map[string][]string {
	out := make(map[string][]string, len(h.names))
	for _, name := range h.names {
		out[name] = slices.Clone(h.values[name])
	}
	return out
}
