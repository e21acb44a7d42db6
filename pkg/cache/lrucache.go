package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// InMemoryLRUCache is a size-bounded, thread-safe cache with least-recently-used
// eviction that fills itself from a fallback Fetcher on a miss. Failed fetches are not
// cached, so a key that could not be produced is retried on the next Fetch.
type InMemoryLRUCache[K comparable, V any] struct {
	maxSize  int
	fallback Fetcher[K, V]

	mu      sync.Mutex
	order   *list.List
	entries map[K]*list.Element
}

// NewInMemoryLRUCache creates a cache holding at most maxSize entries. fallback may be
// nil, in which case every miss is an error.
func NewInMemoryLRUCache[K comparable, V any](maxSize int, fallback Fetcher[K, V]) (*InMemoryLRUCache[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &InMemoryLRUCache[K, V]{
		maxSize:  maxSize,
		fallback: fallback,
		order:    list.New(),
		entries:  make(map[K]*list.Element),
	}, nil
}

func (c *InMemoryLRUCache[K, V]) lookup(key K) (V, bool) {
	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)
		return elem.Value.(*lruEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Fetch returns the cached value for key, consulting the fallback on a miss. The
// fallback runs without the lock held.
func (c *InMemoryLRUCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	c.mu.Lock()
	v, ok := c.lookup(key)
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	if c.fallback == nil {
		var zero V
		return zero, fmt.Errorf("key '%v' not found in LRU cache and no fallback is configured", key)
	}
	fetched, err := c.fallback.Fetch(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another caller may have filled the key while the fallback ran.
	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	c.entries[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: fetched})
	for c.order.Len() > c.maxSize {
		oldest := c.order.Remove(c.order.Back()).(*lruEntry[K, V])
		delete(c.entries, oldest.key)
	}
	return fetched, nil
}

// Invalidate drops key from the cache.
func (c *InMemoryLRUCache[K, V]) Invalidate(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
	return nil
}

// Len reports the number of cached entries.
func (c *InMemoryLRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close closes the fallback, if any.
func (c *InMemoryLRUCache[K, V]) Close() error {
	if c.fallback == nil {
		return nil
	}
	return c.fallback.Close()
}
