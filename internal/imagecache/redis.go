package imagecache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache shared between instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache parses url, pings the server and returns a cache.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("REDIS_URL is required for redis image cache")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !validKey(key) {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, storageKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("image cache get: %w", err)
	}
	return data, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, data []byte) error {
	if !validKey(key) || len(data) == 0 {
		return nil
	}
	if err := c.client.Set(ctx, storageKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("image cache put: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
