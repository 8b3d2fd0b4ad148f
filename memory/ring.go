package memory

import "sync"

// Ring keeps the most recent entries up to a fixed capacity.
type Ring[T any] struct {
	mu    sync.RWMutex
	buf   []T
	start int // index of the oldest entry
	n     int
	total int64
}

// NewRing creates a ring holding at most capacity entries.
// A capacity below 1 is treated as 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest entry when full. It reports whether
// an entry was evicted.
func (r *Ring[T]) Push(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// Items returns a copy of all entries, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastLocked(r.n)
}

// Last returns a copy of the newest n entries, oldest first.
// n <= 0 returns every entry.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.n {
		n = r.n
	}
	return r.lastLocked(n)
}

func (r *Ring[T]) lastLocked(n int) []T {
	out := make([]T, n)
	skip := r.n - n
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.start+skip+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of stored entries.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.n
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Total returns how many entries were ever pushed, including evicted ones.
func (r *Ring[T]) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// Clear drops every entry. Total is kept.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.n = 0, 0
}
