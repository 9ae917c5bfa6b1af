// Package router implements the daemon's handler registry: an ordered set
// of (URI prefix, handler) entries resolved by longest-prefix match, with
// an explicit default handler as the terminal fallback.
//
// This is deliberately not the teacher's radix tree (core/router/radix.go):
// that router resolves full path templates with :param/*catch-all
// segments, which belongs to a higher-level web-framework surface this
// engine doesn't provide. The protocol core only needs to route by URI
// prefix to whichever access handler owns that subtree.
package router

import (
	"errors"
	"sort"
	"sync"

	"github.com/searchktools/mhttpd/internal/connfsm"
	"github.com/searchktools/mhttpd/internal/optimize"
)

// ErrDuplicate is returned by Register when the exact prefix is already
// registered.
var ErrDuplicate = errors.New("router: prefix already registered")

// ErrNotFound is returned by Unregister when the prefix isn't registered.
var ErrNotFound = errors.New("router: prefix not registered")

type entry struct {
	prefix  string
	handler connfsm.Handler
}

// Registry is the daemon's longest-prefix-match handler table. The zero
// value is ready to use. Safe for concurrent Register/Unregister/Lookup —
// the daemon's accept path and any external-mode host thread may touch it
// concurrently.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	def     connfsm.Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a handler for the given URI prefix. An empty prefix sets
// the default (terminal) handler instead of a prefix entry.
func (r *Registry) Register(prefix string, h connfsm.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prefix == "" {
		if r.def != nil {
			return ErrDuplicate
		}
		r.def = h
		return nil
	}

	for _, e := range r.entries {
		if e.prefix == prefix {
			return ErrDuplicate
		}
	}

	r.entries = append(r.entries, entry{prefix: prefix, handler: h})
	// Longest prefix first so Lookup's first match is always the most
	// specific one, without re-sorting on every lookup.
	sort.Slice(r.entries, func(i, j int) bool {
		return len(r.entries[i].prefix) > len(r.entries[j].prefix)
	})
	return nil
}

// Unregister removes the handler previously registered for prefix. An
// empty prefix clears the default handler.
func (r *Registry) Unregister(prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prefix == "" {
		if r.def == nil {
			return ErrNotFound
		}
		r.def = nil
		return nil
	}

	for i, e := range r.entries {
		if e.prefix == prefix {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Lookup returns the handler owning the longest registered prefix of path,
// falling back to the default handler, or (nil, false) if neither exists.
func (r *Registry) Lookup(path string) (connfsm.Handler, bool) {
	h, _, ok := r.LookupPrefix(path)
	return h, ok
}

// LookupPrefix behaves like Lookup but also reports which registered
// prefix matched ("" for the default handler), letting a caller group
// diagnostics by route rather than by raw, high-cardinality path.
func (r *Registry) LookupPrefix(path string) (h connfsm.Handler, prefix string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if hasPrefix(path, e.prefix) {
			return e.handler, e.prefix, true
		}
	}
	if r.def != nil {
		return r.def, "", true
	}
	return nil, "", false
}

func hasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return optimize.ComparePath(path, prefix)
	}
	return path[:len(prefix)] == prefix
}
