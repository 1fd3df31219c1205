// Package visibility tracks which auction rows are currently on screen. The
// resulting Set scopes the push subscription.
package visibility

import (
	"sort"
	"sync"
)

// DefaultThreshold is the minimum intersection ratio for a row to count as
// visible. Rows grazing the viewport edge do not flap the set.
const DefaultThreshold = 0.1

// Set is an immutable set of auction ids. A Tracker hands out a new *Set
// only when membership changes, so pointer equality means "no change".
type Set struct {
	ids map[string]struct{}
}

var empty = &Set{ids: map[string]struct{}{}}

// Empty returns the shared empty set.
func Empty() *Set { return empty }

// NewSet builds a Set from ids.
func NewSet(ids ...string) *Set {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &Set{ids: m}
}

// Has reports whether id is in the set.
func (s *Set) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the ids in ascending order.
func (s *Set) IDs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether s and o hold the same ids.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	for id := range s.ids {
		if !o.Has(id) {
			return false
		}
	}
	return true
}

func (s *Set) with(id string) *Set {
	m := make(map[string]struct{}, len(s.ids)+1)
	for k := range s.ids {
		m[k] = struct{}{}
	}
	m[id] = struct{}{}
	return &Set{ids: m}
}

func (s *Set) without(drop func(string) bool) *Set {
	m := make(map[string]struct{}, len(s.ids))
	for k := range s.ids {
		if !drop(k) {
			m[k] = struct{}{}
		}
	}
	if len(m) == len(s.ids) {
		return s
	}
	return &Set{ids: m}
}

// Tracker maintains the visible set from intersection observations. It is
// safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	threshold float64
	set       *Set
}

// NewTracker returns a Tracker with the given threshold. A non-positive
// threshold selects DefaultThreshold.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold, set: empty}
}

// Set returns the current visible set.
func (t *Tracker) Set() *Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set
}

// Observe records an intersection ratio for a row: at or above the threshold
// the id is added, below it the id is removed.
func (t *Tracker) Observe(id string, ratio float64) *Set {
	if ratio < t.threshold {
		return t.Leave(id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.set.Has(id) {
		t.set = t.set.with(id)
	}
	return t.set
}

// Leave removes id, e.g. when its row scrolled out or unmounted.
func (t *Tracker) Leave(id string) *Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.set.Has(id) {
		t.set = t.set.without(func(k string) bool { return k == id })
	}
	return t.set
}

// Prune drops every id for which present returns false. It is called when
// the auction collection is replaced, since rows that vanished never report
// leaving the viewport.
func (t *Tracker) Prune(present func(id string) bool) *Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set = t.set.without(func(k string) bool { return !present(k) })
	return t.set
}

// Reset empties the set.
func (t *Tracker) Reset() *Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set = empty
	return t.set
}
