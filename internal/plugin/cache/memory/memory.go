package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chirino/portal-service/internal/config"
	registrycache "github.com/chirino/portal-service/internal/registry/cache"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrycache.ResponseCache, error) {
			ttl := defaultTTL
			if cfg := config.FromContext(ctx); cfg != nil && cfg.CacheTTL > 0 {
				ttl = cfg.CacheTTL
			}
			return New(ttl), nil
		},
	})
}

// entry is a cached value tagged with its absolute expiry.
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// Cache is an in-process response cache with lazy expiry: entries are
// checked against their expiry on read and discarded then, so no
// background sweeper is needed.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a Cache with the given default TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		defaultTTL: ttl,
		now:        time.Now,
	}
}

// NewWithClock creates a Cache with an injected clock, for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	c := New(ttl)
	c.now = now
	return c
}

func (c *Cache) Available() bool { return true }

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *Cache) FlushAll(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	return nil
}

var _ registrycache.ResponseCache = (*Cache)(nil)
