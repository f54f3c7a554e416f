package query

import (
	"net/url"
	"strings"

	"marketplace-bff/internal/models"
)

const sep = ":"

// Key identifies a cached read: the operation name followed by its
// parameters, e.g. "products:category:3". The zero Key is a disabled query.
type Key string

// Param is one key segment. An undefined param disables the query.
type Param struct {
	value   string
	defined bool
}

// ID renders an optional entity id as its decimal string.
func ID(id *models.ID) Param {
	if id == nil {
		return Param{}
	}
	return Param{value: id.String(), defined: true}
}

// Text is a free-form segment; empty text counts as undefined.
func Text(s string) Param {
	if s == "" {
		return Param{}
	}
	return Param{value: url.QueryEscape(s), defined: true}
}

// Lit is a fixed segment such as "category".
func Lit(s string) Param {
	return Param{value: s, defined: true}
}

// Build joins op and params into a Key. It returns the zero Key when any
// param is undefined.
func Build(op string, params ...Param) Key {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, op)
	for _, p := range params {
		if !p.defined {
			return ""
		}
		parts = append(parts, p.value)
	}
	return Key(strings.Join(parts, sep))
}

// Prefix builds an invalidation prefix from raw segments.
func Prefix(op string, segments ...string) Key {
	if len(segments) == 0 {
		return Key(op)
	}
	return Key(op + sep + strings.Join(segments, sep))
}

// Enabled is false for queries missing a required parameter.
func (k Key) Enabled() bool {
	return k != ""
}

func (k Key) Op() string {
	op, _, _ := strings.Cut(string(k), sep)
	return op
}

// HasPrefix reports whether p matches k on whole segments.
func (k Key) HasPrefix(p Key) bool {
	if p == "" {
		return false
	}
	return k == p || strings.HasPrefix(string(k), string(p)+sep)
}

// Prefixes lists every whole-segment prefix of k, shortest first, ending
// with k itself.
func (k Key) Prefixes() []Key {
	if k == "" {
		return nil
	}
	parts := strings.Split(string(k), sep)
	out := make([]Key, len(parts))
	for i := range parts {
		out[i] = Key(strings.Join(parts[:i+1], sep))
	}
	return out
}

func (k Key) String() string {
	return string(k)
}
