// Package cache provides the parameterized per-index cache shared by every
// layer of the analysis pipeline: compare the parameter snapshot, evict all
// slots when it changed, then fill slots lazily by index.
package cache

// Snapshot is an immutable parameter bundle able to compare itself with
// another bundle of the same type.
type Snapshot[P any] interface {
	Equal(other P) bool
}

// Slots is a fixed-length array of lazily filled values, all produced under
// the same parameter snapshot. The zero value is an empty cache with no
// snapshot. Slots is not safe for concurrent use.
type Slots[P Snapshot[P], V any] struct {
	snapshot P
	synced   bool
	values   []V
	filled   []bool
	count    int
}

// New returns a cache with n empty slots.
func New[P Snapshot[P], V any](n int) *Slots[P, V] {
	s := &Slots[P, V]{}
	s.Reset(n)
	return s
}

// Reset resizes the cache to n empty slots and forgets the snapshot.
func (s *Slots[P, V]) Reset(n int) {
	if n < 0 {
		n = 0
	}
	var zero P
	s.snapshot = zero
	s.synced = false
	s.values = make([]V, n)
	s.filled = make([]bool, n)
	s.count = 0
}

// Resize evicts every slot and changes their number, keeping the snapshot.
func (s *Slots[P, V]) Resize(n int) {
	if n < 0 {
		n = 0
	}
	s.values = make([]V, n)
	s.filled = make([]bool, n)
	s.count = 0
}

// Len returns the number of slots.
func (s *Slots[P, V]) Len() int {
	return len(s.values)
}

// Filled returns the number of slots currently holding a value.
func (s *Slots[P, V]) Filled() int {
	return s.count
}

// Sync makes p the current snapshot. When p differs from the stored
// snapshot, or no snapshot was stored yet, every slot is evicted before the
// snapshot is replaced and Sync reports true.
func (s *Slots[P, V]) Sync(p P) bool {
	if s.synced && s.snapshot.Equal(p) {
		return false
	}
	s.clear()
	s.snapshot = p
	s.synced = true
	return true
}

// Snapshot returns the stored snapshot and whether one exists.
func (s *Slots[P, V]) Snapshot() (P, bool) {
	return s.snapshot, s.synced
}

// Get returns the value at index i. Out-of-range indices are misses.
func (s *Slots[P, V]) Get(i int) (V, bool) {
	if i < 0 || i >= len(s.values) || !s.filled[i] {
		var zero V
		return zero, false
	}
	return s.values[i], true
}

// Put stores v at index i. It reports false for out-of-range indices.
func (s *Slots[P, V]) Put(i int, v V) bool {
	if i < 0 || i >= len(s.values) {
		return false
	}
	if !s.filled[i] {
		s.count++
	}
	s.values[i] = v
	s.filled[i] = true
	return true
}

// Invalidate evicts every slot and forgets the snapshot, so the next Sync
// always reports a change.
func (s *Slots[P, V]) Invalidate() {
	s.clear()
	var zero P
	s.snapshot = zero
	s.synced = false
}

func (s *Slots[P, V]) clear() {
	var zero V
	for i := range s.values {
		s.values[i] = zero
		s.filled[i] = false
	}
	s.count = 0
}
