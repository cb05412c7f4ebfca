package change

import (
	"strconv"
	"strings"
)

// Value is one typed attribute of a record image, in the store's wire shape
// ({"S": "..."}, {"N": "..."}, {"M": {...}}, ...). Exactly one member is set.
type Value struct {
	S    *string          `json:"S,omitempty"`
	N    *string          `json:"N,omitempty"`
	SS   []string         `json:"SS,omitempty"`
	NS   []string         `json:"NS,omitempty"`
	L    []Value          `json:"L,omitempty"`
	M    map[string]Value `json:"M,omitempty"`
	BOOL *bool            `json:"BOOL,omitempty"`
	NULL bool             `json:"NULL,omitempty"`
}

// String builds a string attribute.
func String(s string) Value { return Value{S: &s} }

// Number builds a numeric attribute.
func Number(n int64) Value {
	s := strconv.FormatInt(n, 10)
	return Value{N: &s}
}

// Map builds a map attribute.
func Map(m map[string]Value) Value { return Value{M: m} }

// Image is a before or after snapshot of a store record.
type Image map[string]Value

// String returns a string attribute. Missing or non-string attributes report false.
func (im Image) String(name string) (string, bool) {
	v, ok := im[name]
	if !ok || v.S == nil {
		return "", false
	}
	return *v.S, true
}

// Int returns an integer attribute. Missing or unparsable attributes report false.
func (im Image) Int(name string) (int64, bool) {
	v, ok := im[name]
	if !ok || v.N == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(*v.N), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Map returns a nested map attribute as an Image.
func (im Image) Map(name string) (Image, bool) {
	v, ok := im[name]
	if !ok || v.M == nil {
		return nil, false
	}
	return Image(v.M), true
}
