// Package jit implements the engine's compile cache (spec component C7):
// given a canonical signature for a call's arguments (shape+dtype+device
// for Array-typed args, the raw value for everything else, kwargs sorted
// by name), it memoizes the graph node ids a builder function produced for
// that signature so a repeated call with an equivalent signature skips
// rebuilding the subgraph. The cache is namespaced to one Backend
// session (google/uuid SessionID) and is cleared wholesale at Cleanup —
// there is no per-entry eviction, matching the reference implementation's
// "recompiled only on context or shape change" behavior.
package jit

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/example/lazygrad/internal/dtype"
	"github.com/example/lazygrad/internal/graph"
)

// Arg describes one positional or keyword argument for signature
// purposes. IsArray arguments contribute shape+dtype+device to the
// signature and never their value (two calls with different Array values
// but the same shape/dtype hit the same cache entry, per spec §4.7);
// non-Array arguments contribute their Go value directly via fmt's %#v,
// so e.g. two calls with a different Python-style axis int recompile.
type Arg struct {
	IsArray bool
	Shape   []int
	Dtype   dtype.Dtype
	Device  string
	Value   any
}

func (a Arg) encode() string {
	if a.IsArray {
		return fmt.Sprintf("arr(shape=%v,dtype=%s,dev=%s)", a.Shape, a.Dtype, a.Device)
	}
	return fmt.Sprintf("val(%#v)", a.Value)
}

// Signature canonicalizes a call's args and kwargs into a single
// comparable string: positional args in order, then kwargs sorted by key.
func Signature(name string, args []Arg, kwargs map[string]Arg) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.encode())
	}
	if len(kwargs) > 0 {
		keys := make([]string, 0, len(kwargs))
		for k := range kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte(';')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(kwargs[k].encode())
		}
	}
	b.WriteByte(')')
	return b.String()
}

// entry holds a compiled call's cached output node ids plus a hit
// counter, surfaced for tests and diagnostics (spec §8's "compiled once,
// reused on the next two calls" scenario).
type entry struct {
	ids  []graph.ID
	hits int
}

// Cache is one Backend session's JIT cache.
type Cache struct {
	mu        sync.Mutex
	sessionID uuid.UUID
	entries   map[string]*entry
}

// NewCache creates a cache namespaced to sessionID.
func NewCache(sessionID uuid.UUID) *Cache {
	return &Cache{sessionID: sessionID, entries: make(map[string]*entry)}
}

// SessionID reports which Backend session this cache belongs to.
func (c *Cache) SessionID() uuid.UUID { return c.sessionID }

// Clear empties the cache; called on Backend Cleanup.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Len reports the number of distinct cached signatures.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Hits reports how many times sig was found already cached (0 means
// never called or compiled once and never reused, 1 means reused once,
// etc. — a fresh build counts as the first lookup, not a hit).
func (c *Cache) Hits(sig string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[sig]; ok {
		return e.hits
	}
	return 0
}

// Call returns the cached output ids for sig, building and storing them
// via build if this is the first time sig has been seen.
func Call(c *Cache, sig string, build func() ([]graph.ID, error)) ([]graph.ID, error) {
	c.mu.Lock()
	if e, ok := c.entries[sig]; ok {
		e.hits++
		ids := e.ids
		c.mu.Unlock()
		return ids, nil
	}
	c.mu.Unlock()

	ids, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[sig]; ok {
		// lost a race with a concurrent identical call; keep the first
		// writer's ids so downstream node references stay stable.
		e.hits++
		return e.ids, nil
	}
	c.entries[sig] = &entry{ids: ids}
	return ids, nil
}
