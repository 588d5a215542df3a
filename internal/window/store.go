// Package window provides per-key sliding windows for streaming detection.
//
// A Store maps a source key to an ordered sequence of samples. Bounding is
// left to the caller: time-bounded windows call EvictOlderThan with the
// timestamp of the event being evaluated, count-bounded windows call
// EvictToMaxCount. Reading a key that was never written yields an empty
// window, never an error.
package window

import (
	"sort"
	"sync"
	"time"
)

// Window is the ordered sample sequence for one key.
// Its methods are not synchronized; use Store.Update to operate on a
// window inside the key's critical section.
type Window[T any] struct {
	samples []T
}

// Append adds a sample at the tail.
func (w *Window[T]) Append(sample T) {
	w.samples = append(w.samples, sample)
}

// EvictOlderThan removes every sample whose timestamp is more than maxAge
// before now. The filter is stable, so surviving samples keep their order.
// Returns the number of samples removed.
func (w *Window[T]) EvictOlderThan(now time.Time, maxAge time.Duration, at func(T) time.Time) int {
	kept := w.samples[:0]
	for _, s := range w.samples {
		if now.Sub(at(s)) > maxAge {
			continue
		}
		kept = append(kept, s)
	}
	removed := len(w.samples) - len(kept)
	clearTail(w.samples, len(kept))
	w.samples = kept
	return removed
}

// EvictToMaxCount drops samples from the front until at most max remain.
func (w *Window[T]) EvictToMaxCount(max int) int {
	if max < 0 {
		max = 0
	}
	excess := len(w.samples) - max
	if excess <= 0 {
		return 0
	}
	n := copy(w.samples, w.samples[excess:])
	clearTail(w.samples, n)
	w.samples = w.samples[:n]
	return excess
}

// Len returns the number of samples.
func (w *Window[T]) Len() int {
	return len(w.samples)
}

// Average returns the arithmetic mean of value over the samples, or 0 when empty.
func (w *Window[T]) Average(value func(T) float64) float64 {
	if len(w.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.samples {
		sum += value(s)
	}
	return sum / float64(len(w.samples))
}

// Snapshot returns a copy of the samples.
func (w *Window[T]) Snapshot() []T {
	out := make([]T, len(w.samples))
	copy(out, w.samples)
	return out
}

// clearTail zeroes s[from:] so evicted samples can be collected.
func clearTail[T any](s []T, from int) {
	var zero T
	for i := from; i < len(s); i++ {
		s[i] = zero
	}
}

type entry[T any] struct {
	mu sync.Mutex
	w  Window[T]
}

// Store holds one Window per key. It is safe for concurrent use; operations
// on the same key are serialized, operations on different keys are not.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[string]*entry[T]
}

// NewStore creates an empty store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
	}
}

// lookup returns the entry for key, creating it when create is set.
func (s *Store[T]) lookup(key string, create bool) *entry[T] {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; !ok {
		e = &entry[T]{}
		s.entries[key] = e
	}
	return e
}

// Update runs fn on the key's window while holding the key's lock.
// The window is created if the key is new.
func (s *Store[T]) Update(key string, fn func(w *Window[T])) {
	e := s.lookup(key, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.w)
}

// view runs fn on the key's window under its lock without creating it.
// Unknown keys are presented as an empty window.
func (s *Store[T]) view(key string, fn func(w *Window[T])) {
	e := s.lookup(key, false)
	if e == nil {
		fn(&Window[T]{})
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.w)
}

// Append adds sample to the tail of key's window.
func (s *Store[T]) Append(key string, sample T) {
	s.Update(key, func(w *Window[T]) { w.Append(sample) })
}

// EvictOlderThan drops samples of key older than now minus maxAge.
func (s *Store[T]) EvictOlderThan(key string, now time.Time, maxAge time.Duration, at func(T) time.Time) int {
	var removed int
	s.view(key, func(w *Window[T]) { removed = w.EvictOlderThan(now, maxAge, at) })
	return removed
}

// EvictToMaxCount trims key's window from the front to at most max samples.
func (s *Store[T]) EvictToMaxCount(key string, max int) int {
	var removed int
	s.view(key, func(w *Window[T]) { removed = w.EvictToMaxCount(max) })
	return removed
}

// Size returns the number of samples held for key.
func (s *Store[T]) Size(key string) int {
	var n int
	s.view(key, func(w *Window[T]) { n = w.Len() })
	return n
}

// Average returns the mean of key's samples, 0 for an empty or unknown key.
func (s *Store[T]) Average(key string, value func(T) float64) float64 {
	var avg float64
	s.view(key, func(w *Window[T]) { avg = w.Average(value) })
	return avg
}

// Snapshot returns a copy of key's samples.
func (s *Store[T]) Snapshot(key string) []T {
	var out []T
	s.view(key, func(w *Window[T]) { out = w.Snapshot() })
	return out
}

// Keys returns the tracked keys in sorted order. Keys stay tracked after
// their window has been evicted to empty.
func (s *Store[T]) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of tracked keys.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reset drops every key.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	s.entries = make(map[string]*entry[T])
	s.mu.Unlock()
}

// Instant is the projection for windows of bare timestamps.
func Instant(t time.Time) time.Time { return t }

// Reading is the projection for windows of bare numeric readings.
func Reading(v float64) float64 { return v }
