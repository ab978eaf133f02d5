package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/portal-service/internal/config"
	registrycache "github.com/chirino/portal-service/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 5 * time.Minute
	keyPrefix  = "portal-cache:"
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.ResponseCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: PORTAL_SERVICE_REDIS_URL is required")
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return LoadFromURL(ctx, cfg.RedisURL, ttl)
}

// LoadFromURL creates a ResponseCache from a Redis-compatible URL.
func LoadFromURL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.ResponseCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisResponseCache{client: client, ttl: ttl}, nil
}

type redisResponseCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func (c *redisResponseCache) Available() bool { return true }

func (c *redisResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *redisResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, keyPrefix+key, value, ttl).Err()
}

// FlushAll removes only this service's keys, by prefix scan, so a shared
// Redis instance is not wiped.
func (c *redisResponseCache) FlushAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

var _ registrycache.ResponseCache = (*redisResponseCache)(nil)
