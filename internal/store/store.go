// Package store provides observable values: a read/write cell whose
// subscribers are told about every write. UI-facing projections read from
// these cells and never mutate them directly.
package store

import (
	"sync"

	"github.com/gluk-w/claworc/webssh/internal/logging"
)

// Listener receives the previous and the new value after each write.
// Listeners run synchronously on the writer's goroutine, outside the lock.
type Listener[T any] func(old, new T)

// Value is a concurrency-safe observable cell.
type Value[T any] struct {
	mu        sync.RWMutex
	name      string
	v         T
	listeners map[int]Listener[T]
	nextID    int
}

// NewValue creates a cell. name is used only in debug logs.
func NewValue[T any](name string, initial T) *Value[T] {
	return &Value[T]{
		name:      name,
		v:         initial,
		listeners: make(map[int]Listener[T]),
	}
}

// Get returns the current value.
func (c *Value[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Set stores x and notifies listeners.
func (c *Value[T]) Set(x T) {
	c.Update(func(T) T { return x })
}

// Update replaces the value with fn(current) atomically and notifies
// listeners. It returns the new value.
func (c *Value[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	old := c.v
	c.v = fn(old)
	now := c.v
	ls := make([]Listener[T], 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	logging.Debugf("store %s: %v -> %v", c.name, old, now)
	for _, l := range ls {
		l(old, now)
	}
	return now
}

// Subscribe registers l and returns a function that removes it.
func (c *Value[T]) Subscribe(l Listener[T]) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}
