// Package headers implements the ordered, multi-valued, case-insensitive
// key/value store shared by requests, responses and trailers.
package headers

import (
	"errors"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ErrInvalidField is returned by Append when key or value contains a CR,
// LF or NUL byte, or otherwise fails RFC 7230 field validation.
var ErrInvalidField = errors.New("headers: invalid field name or value")

// Kind distinguishes the four value spaces the daemon multiplexes through
// one storage type, plus the response-header space used for outgoing
// values. Kinds are combinable by bitwise OR when iterating/counting.
type Kind uint8

const (
	ResponseHeader Kind = 1 << iota
	Header
	Cookie
	PostData
	GetArgument
)

// entry is one (kind, key, value) triple. lower is precomputed for
// case-insensitive lookups without an allocation per comparison.
type entry struct {
	kind  Kind
	key   string
	lower string
	value string
}

// Map is an insertion-ordered, multi-valued, case-insensitive (by key)
// store. The zero value is ready to use.
type Map struct {
	entries []entry
}

// Append adds one (kind, key, value) triple, preserving insertion order.
// Duplicate keys are allowed. Returns ErrInvalidField if key or value
// contains CR, LF, NUL or otherwise isn't a valid HTTP field.
func (m *Map) Append(kind Kind, key, value string) error {
	if !httpguts.ValidHeaderFieldName(key) || !httpguts.ValidHeaderFieldValue(value) {
		return ErrInvalidField
	}
	m.entries = append(m.entries, entry{
		kind:  kind,
		key:   key,
		lower: strings.ToLower(key),
		value: value,
	})
	return nil
}

// LookupFirst returns the first value stored under kind for key
// (case-insensitive), and whether it was found.
func (m *Map) LookupFirst(kind Kind, key string) (string, bool) {
	lower := strings.ToLower(key)
	for _, e := range m.entries {
		if e.kind == kind && e.lower == lower {
			return e.value, true
		}
	}
	return "", false
}

// LookupAll returns every value stored under kind for key, in insertion
// order.
func (m *Map) LookupAll(kind Kind, key string) []string {
	lower := strings.ToLower(key)
	var out []string
	for _, e := range m.entries {
		if e.kind == kind && e.lower == lower {
			out = append(out, e.value)
		}
	}
	return out
}

// Iterate calls fn for every entry whose kind is set in kindMask, in
// insertion order. fn returning false stops iteration early.
func (m *Map) Iterate(kindMask Kind, fn func(kind Kind, key, value string) bool) {
	for _, e := range m.entries {
		if e.kind&kindMask == 0 {
			continue
		}
		if !fn(e.kind, e.key, e.value) {
			return
		}
	}
}

// Count returns the number of entries whose kind is set in kindMask.
func (m *Map) Count(kindMask Kind) int {
	n := 0
	for _, e := range m.entries {
		if e.kind&kindMask != 0 {
			n++
		}
	}
	return n
}

// Del removes every entry of kind matching key (case-insensitive).
// Returns the number of entries removed.
func (m *Map) Del(kind Kind, key string) int {
	lower := strings.ToLower(key)
	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if e.kind == kind && e.lower == lower {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed
}

// Reset clears the map for reuse without releasing its backing array,
// mirroring the teacher's pooled-request Reset pattern.
func (m *Map) Reset() {
	m.entries = m.entries[:0]
}
