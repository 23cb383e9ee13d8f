package jobs

import "sync"

// Ring is a thread-safe circular buffer that keeps the newest entries.
type Ring[T any] struct {
	entries []T
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewRing creates a ring with the given capacity. A size below 1 keeps nothing.
func NewRing[T any](size int) *Ring[T] {
	if size < 0 {
		size = 0
	}
	return &Ring[T]{
		entries: make([]T, size),
		size:    size,
	}
}

// Write adds an entry, overwriting the oldest when full.
func (r *Ring[T]) Write(entry T) {
	if r.size == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = entry
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// ReadAll returns all entries, oldest first.
func (r *Ring[T]) ReadAll() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)
	if r.count < r.size {
		copy(result, r.entries[:r.count])
		return result
	}
	n := copy(result, r.entries[r.head:])
	copy(result[n:], r.entries[:r.head])
	return result
}

// Count returns the number of entries held.
func (r *Ring[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
