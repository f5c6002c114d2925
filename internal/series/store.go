// Package series holds the live holder-count time series and the clock that
// stamps its samples.
package series

import (
	"sort"
	"sync"

	"holders-backend/internal/models"
)

// DefaultCapacity is the maximum number of samples kept per series
const DefaultCapacity = 2000

// Store is an ordered, de-duplicated, capacity-bounded sequence of samples.
//
// Samples are kept sorted ascending by time with pairwise distinct times.
// When the store is full the oldest samples are evicted, so the newest
// sample is always retained. Safe for one writer and many readers.
type Store struct {
	mu       sync.RWMutex
	capacity int
	samples  []models.Sample
}

// NewStore creates a store holding at most capacity samples.
// A non-positive capacity uses DefaultCapacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		samples:  make([]models.Sample, 0, capacity),
	}
}

// Append merges s into the series. A sample whose time is already present
// is dropped (the first-seen value for a time wins). Out-of-order samples
// are inserted in time order. Returns false if s was dropped as a duplicate.
func (st *Store) Append(s models.Sample) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := len(st.samples)
	switch {
	case n == 0 || s.Time > st.samples[n-1].Time:
		st.samples = append(st.samples, s)
	default:
		i := sort.Search(n, func(i int) bool { return st.samples[i].Time >= s.Time })
		if i < n && st.samples[i].Time == s.Time {
			return false
		}
		st.samples = append(st.samples, models.Sample{})
		copy(st.samples[i+1:], st.samples[i:])
		st.samples[i] = s
	}

	if over := len(st.samples) - st.capacity; over > 0 {
		// shift in place so the backing array does not grow without bound
		copy(st.samples, st.samples[over:])
		st.samples = st.samples[:st.capacity]
	}
	return true
}

// Snapshot returns a copy of the series, ready to hand to a renderer
func (st *Store) Snapshot() []models.Sample {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]models.Sample, len(st.samples))
	copy(out, st.samples)
	return out
}

// Latest returns the newest sample, if any
func (st *Store) Latest() (models.Sample, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if len(st.samples) == 0 {
		return models.Sample{}, false
	}
	return st.samples[len(st.samples)-1], true
}

// Len returns the number of samples held
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.samples)
}

// Capacity returns the maximum number of samples held
func (st *Store) Capacity() int {
	return st.capacity
}

// Reset empties the series
func (st *Store) Reset() {
	st.mu.Lock()
	st.samples = st.samples[:0]
	st.mu.Unlock()
}
