// Package cache holds step outputs for the duration of a logical pipeline
// run, so a step with several downstream consumers is evaluated once per
// run instead of once per consumer.
//
// Entries live until explicitly cleared; the engine never auto-detects
// run boundaries. Per-run capacity is bounded by an LRU, and an evicted
// entry simply reads as a miss, which costs a recomputation and nothing
// else.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity bounds the number of cached step outputs per run.
const DefaultCapacity = 128

// Store is a per-run, per-step value cache. V is the cached output type.
type Store[V any] struct {
	mu       sync.Mutex
	capacity int
	runs     map[string]*lru.Cache[string, V]
}

// New creates a Store whose per-run caches hold up to capacity entries.
// capacity <= 0 uses DefaultCapacity.
func New[V any](capacity int) *Store[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store[V]{
		capacity: capacity,
		runs:     make(map[string]*lru.Cache[string, V]),
	}
}

// Put records the output of step within run.
func (s *Store[V]) Put(runID, step string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.runs[runID]
	if !ok {
		// lru.New errors only on non-positive size.
		c, _ = lru.New[string, V](s.capacity)
		s.runs[runID] = c
	}
	c.Add(step, value)
}

// Get returns the cached output of step within run, if present.
func (s *Store[V]) Get(runID, step string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.runs[runID]
	if !ok {
		var zero V
		return zero, false
	}
	return c.Get(step)
}

// Clear drops cached outputs for a run. With no step names the whole run
// is dropped; otherwise only the named steps.
func (s *Store[V]) Clear(runID string, steps ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.runs[runID]
	if !ok {
		return
	}
	if len(steps) == 0 {
		delete(s.runs, runID)
		return
	}
	for _, step := range steps {
		c.Remove(step)
	}
}

// Len reports the number of cached outputs for a run.
func (s *Store[V]) Len(runID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.runs[runID]
	if !ok {
		return 0
	}
	return c.Len()
}
