package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the short-lived key store used to drop duplicate webhook
// deliveries. Implementations must be safe for concurrent use.
type Cache interface {
	// Claim sets key if it is absent and reports whether this caller won it.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release removes a claim so the work can be retried.
	Release(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (c *RedisCache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
