// Package deque implements the bounded double-ended queue used by the
// multi-thread backend's workers. The owning worker pushes and pops at the
// bottom (LIFO, for cache locality); idle peers steal from the top, taking
// half of the victim's items per steal to amortize contention.
package deque

import "sync"

// Deque is a bounded, mutex-guarded double-ended queue.
//
// Only the owning worker may call PushBottom and PopBottom; any worker may
// call Steal. The zero value is not usable; create one with New.
type Deque[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
}

// New creates a deque holding at most capacity items.
func New[T any](capacity int) *Deque[T] {
	if capacity <= 0 {
		panic("deque: capacity must be positive")
	}
	return &Deque[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// PushBottom appends an item at the bottom. It returns false if the deque
// is full.
func (d *Deque[T]) PushBottom(v T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.items) >= d.capacity {
		return false
	}
	d.items = append(d.items, v)
	return true
}

// PopBottom removes and returns the most recently pushed item.
func (d *Deque[T]) PopBottom() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	n := len(d.items)
	if n == 0 {
		return zero, false
	}
	v := d.items[n-1]
	d.items[n-1] = zero
	d.items = d.items[:n-1]
	return v, true
}

// Steal removes half of the deque's items from the top (rounded up),
// returning the first stolen item directly and the remainder for the thief
// to keep. It returns false if the deque is empty.
func (d *Deque[T]) Steal() (T, []T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var zero T
	n := len(d.items)
	if n == 0 {
		return zero, nil, false
	}

	take := (n + 1) / 2
	stolen := make([]T, take)
	copy(stolen, d.items[:take])
	remaining := copy(d.items, d.items[take:])
	for i := remaining; i < n; i++ {
		d.items[i] = zero
	}
	d.items = d.items[:remaining]

	return stolen[0], stolen[1:], true
}

// Len returns the current number of items.
func (d *Deque[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Cap returns the deque's fixed capacity.
func (d *Deque[T]) Cap() int { return d.capacity }
