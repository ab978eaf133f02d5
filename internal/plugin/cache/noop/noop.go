package noop

import (
	"context"
	"time"

	registrycache "github.com/chirino/portal-service/internal/registry/cache"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (registrycache.ResponseCache, error) {
			return &noopResponseCache{}, nil
		},
	})
}

// noopResponseCache always misses; every read goes to Missive.
type noopResponseCache struct{}

func (n *noopResponseCache) Available() bool { return false }
func (n *noopResponseCache) Get(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}
func (n *noopResponseCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return nil
}
func (n *noopResponseCache) FlushAll(_ context.Context) error { return nil }

var _ registrycache.ResponseCache = (*noopResponseCache)(nil)
