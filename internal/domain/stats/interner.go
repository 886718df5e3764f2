// Package stats holds the pure aggregation logic: the model interner, packed
// per-file contributions, and the per-source aggregate view. Nothing here
// touches the filesystem or the cache — contributions are built from records
// and folded into aggregates, and that is all.
package stats

import "sync"

// ModelKey is a small stable integer standing in for a model-name string.
// Keys are assigned sequentially on first sighting and never removed; growth
// is bounded by the number of distinct model names ever seen.
type ModelKey uint16

// ModelInterner maps model-name strings to ModelKeys and back. It is a
// process-scoped service: constructed once at startup, passed by reference
// to every component that packs or renders model names, alive for the
// process duration. Safe for concurrent use from any goroutine.
//
// Key 0 is reserved for the empty string, so a zero ModelKey always resolves
// to "" rather than to whichever model happened to be interned first.
type ModelInterner struct {
	mu    sync.RWMutex
	keys  map[string]ModelKey
	names []string
}

// NewModelInterner creates an empty interner with key 0 bound to "".
func NewModelInterner() *ModelInterner {
	return &ModelInterner{
		keys:  map[string]ModelKey{"": 0},
		names: []string{""},
	}
}

// Intern returns the key for name, creating one on first sighting.
func (in *ModelInterner) Intern(name string) ModelKey {
	in.mu.RLock()
	key, ok := in.keys[name]
	in.mu.RUnlock()
	if ok {
		return key
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	// Re-check: another goroutine may have interned between the locks.
	if key, ok := in.keys[name]; ok {
		return key
	}
	key = ModelKey(len(in.names))
	in.keys[name] = key
	in.names = append(in.names, name)
	return key
}

// Name resolves a key back to its string. Unknown keys resolve to "".
func (in *ModelInterner) Name(key ModelKey) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(key) >= len(in.names) {
		return ""
	}
	return in.names[key]
}

// Names returns the full table in key order. Index i is the name for key i.
// Used to persist the table alongside packed contributions.
func (in *ModelInterner) Names() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]string, len(in.names))
	copy(out, in.names)
	return out
}

// Restore seeds the interner from a previously persisted table. Returns false
// if the interner has already diverged from the given table (keys would not
// line up), in which case the caller must discard whatever referenced them.
func (in *ModelInterner) Restore(names []string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(names) == 0 {
		return true
	}
	if names[0] != "" {
		return false
	}
	// One table must be a prefix of the other, or persisted keys would
	// resolve to the wrong names.
	common := len(in.names)
	if len(names) < common {
		common = len(names)
	}
	for i := 0; i < common; i++ {
		if names[i] != in.names[i] {
			return false
		}
	}
	if len(names) > len(in.names) {
		for _, name := range names[len(in.names):] {
			in.keys[name] = ModelKey(len(in.names))
			in.names = append(in.names, name)
		}
	}
	return true
}

// Len returns the number of interned names, including the reserved empty key.
func (in *ModelInterner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.names)
}
