package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores upstream weather documents with a TTL.
// Get returns (value, true, nil) on hit and (zero, false, nil) on miss or expiry.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access.
type InMemoryCache[T any] struct {
	mu   sync.Mutex
	data map[string]cacheEntry[T]
}

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache[T any]() *InMemoryCache[T] {
	return &InMemoryCache[T]{
		data: make(map[string]cacheEntry[T]),
	}
}

func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return zero, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
