// Package cache provides the small in-process caches the bridge uses to memoize
// lookups, such as resolved handlers in late-binding subscriptions.
package cache

import "context"

// Fetcher produces the value for a key. Caches use it as their source on a miss.
type Fetcher[K any, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
	Close() error
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc[K any, V any] func(ctx context.Context, key K) (V, error)

// Fetch calls f.
func (f FetcherFunc[K, V]) Fetch(ctx context.Context, key K) (V, error) { return f(ctx, key) }

// Close is a no-op.
func (f FetcherFunc[K, V]) Close() error { return nil }
