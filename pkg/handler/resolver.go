package handler

import (
	"context"

	"github.com/illmade-knight/go-vizbridge/pkg/cache"
)

// Resolved is a handler together with the schema type it was resolved for.
type Resolved struct {
	SchemaType string
	Handler    Handler
}

// CachedResolver resolves handlers per message topic, remembering the most recently
// used topics. Unroutable topics are not remembered.
type CachedResolver struct {
	lru *cache.InMemoryLRUCache[string, Resolved]
}

// NewCachedResolver keeps up to size resolved topics from registry.
func NewCachedResolver(registry *Registry, size int) (*CachedResolver, error) {
	fetch := cache.FetcherFunc[string, Resolved](func(_ context.Context, topic string) (Resolved, error) {
		typeID, h, err := registry.Route(topic)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{SchemaType: typeID, Handler: h}, nil
	})
	lru, err := cache.NewInMemoryLRUCache[string, Resolved](size, fetch)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{lru: lru}, nil
}

// Resolve returns the handler for topic or an ErrRouting error.
func (c *CachedResolver) Resolve(ctx context.Context, topic string) (Resolved, error) {
	return c.lru.Fetch(ctx, topic)
}

// Len is the number of remembered topics.
func (c *CachedResolver) Len() int { return c.lru.Len() }
