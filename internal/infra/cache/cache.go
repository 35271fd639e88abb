// Package cache provides a small in-memory TTL cache. The session manager
// uses it to avoid refetching the same profile on every session change.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a thread-safe in-memory cache with TTL.
// Expired entries are swept lazily on writes, so no background goroutine
// is needed for the handful of keys this layer holds.
type InMemory[T any] struct {
	mu     sync.RWMutex
	items  map[string]entry[T]
	ttl    time.Duration
	writes int
}

// sweepEvery controls how many Sets happen between lazy sweeps.
const sweepEvery = 64

// New creates an in-memory cache with the given TTL.
func New[T any](ttl time.Duration) *InMemory[T] {
	return &InMemory[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
	}
}

// Get retrieves a value. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{value: value, expiresAt: time.Now().Add(c.ttl)}

	c.writes++
	if c.writes%sweepEvery == 0 {
		now := time.Now()
		for k, e := range c.items {
			if now.After(e.expiresAt) {
				delete(c.items, k)
			}
		}
	}
}

// Delete removes a value.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len reports the number of stored entries, expired or not.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}
