// Package dimension resolves the process-global dimension state of spec
// §4.1.6: independent dimension-key values come from the dimensionInfo
// category, dependent ones from their own category-dim partition keyed by
// the already-resolved independent coordinate.
package dimension

import (
	"sort"
	"strings"
	"sync"

	"settingsvc/internal/define"
)

// ValueSource resolves the current persisted value of a single key for a
// given category-dim partition, trying main then falling back to default;
// volatile keys are checked first by the caller (spec §4.1.6 "Volatile
// dimension-key values are read from the volatile map first").
type ValueSource interface {
	// CurrentValue returns the current string value of key within
	// categoryDim, and whether any record provided one.
	CurrentValue(categoryDim, key string) (string, bool)
}

// State holds the process-global currentDimension mapping (spec §3.1) and
// is safe for concurrent reads; rebuilds replace the map wholesale under
// lock, matching spec §5's "indexed once, never mutated in-place" cache
// discipline.
type State struct {
	mu      sync.RWMutex
	current map[string]string
}

// New returns an empty State.
func New() *State {
	return &State{current: map[string]string{}}
}

// Snapshot returns a copy of the current dimension mapping (spec §4.1.7
// currentDimension()).
func (s *State) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.current))
	for k, v := range s.current {
		out[k] = v
	}
	return out
}

// Value returns the current value of one dimension-key, "" if unresolved.
func (s *State) Value(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current[key]
}

// IndependentKeys are the dimension-keys resolved directly from the
// dimensionInfo category (spec §4.1.6 "type:d0").
type IndependentKeys []string

// DependentKey is a dimension-key whose value lives in its own
// category-scoped partition, addressed using the already-resolved
// independent coordinate (spec §4.1.6 "type:d1").
type DependentKey struct {
	Key      string
	Category string   // the category owning this dependent key's current value
	Dims     []string // the independent dims that select the partition
}

// Rebuild resolves every independent key from the dimensionInfo category,
// then every dependent key from its own category partition keyed by the
// independent coordinate resolved so far, and replaces the State's mapping
// atomically. The service does not call Rebuild at startup, on country
// change or after a dimension-key write, so the State stays empty unless a
// caller invokes Rebuild directly.
func (s *State) Rebuild(src ValueSource, independent IndependentKeys, dependent []DependentKey) {
	next := map[string]string{}

	for _, key := range independent {
		if v, ok := src.CurrentValue(define.DimensionInfoCategory, key); ok {
			next[key] = v
		}
	}

	for _, dep := range dependent {
		coord := buildCoordinate(next, dep.Dims)
		categoryDim := dep.Category
		if coord != "" {
			categoryDim = dep.Category + "$" + coord
		}
		if v, ok := src.CurrentValue(categoryDim, dep.Key); ok {
			next[dep.Key] = v
		}
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
}

// buildCoordinate joins the resolved values of dims, in order, with '.',
// using the wildcard sentinel for any dim not yet resolved.
func buildCoordinate(resolved map[string]string, dims []string) string {
	if len(dims) == 0 {
		return ""
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		v, ok := resolved[d]
		if !ok || v == "" {
			v = define.WildcardCoordinate
		}
		parts[i] = v
	}
	return strings.Join(parts, ".")
}

// DependsOn reports whether category varies over dimKey, used to decide
// which subscribers need re-notification after a dimension-key write
// (spec §3.2, §4.4.2).
func DependsOn(categoryDims map[string][]string, category, dimKey string) bool {
	for _, d := range categoryDims[category] {
		if d == dimKey {
			return true
		}
	}
	return false
}

// SortedKeys returns dims sorted for deterministic logging/tests.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
