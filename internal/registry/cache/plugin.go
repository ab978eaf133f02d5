package cache

import (
	"context"
	"fmt"
	"time"
)

type responseCacheKey struct{}

// WithContext returns a new context carrying the given ResponseCache.
func WithContext(ctx context.Context, c ResponseCache) context.Context {
	return context.WithValue(ctx, responseCacheKey{}, c)
}

// FromContext retrieves the ResponseCache from the context.
// Returns nil if none was set.
func FromContext(ctx context.Context) ResponseCache {
	c, _ := ctx.Value(responseCacheKey{}).(ResponseCache)
	return c
}

// ResponseCache is a TTL-bounded key/value store fronting the Missive
// fetchers. Values are opaque JSON payloads. An entry whose expiry has
// passed is a miss even if it has not been physically evicted yet.
// Implementations never need to guarantee durability; a failed Set
// simply means the next read re-fetches.
type ResponseCache interface {
	Available() bool
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// FlushAll drops every entry so the next reads hit Missive again.
	FlushAll(ctx context.Context) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (ResponseCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
