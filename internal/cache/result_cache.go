package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache stores computed results as JSON documents.
type ResultCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisResultCache keeps results in Redis under a key prefix.
type RedisResultCache struct {
	client *redis.Client
	prefix string
}

func NewRedisResultCache(client *redis.Client, prefix string) *RedisResultCache {
	return &RedisResultCache{client: client, prefix: prefix}
}

func (c *RedisResultCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("result cache get: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A payload from an older release is treated as a miss.
		return false, nil
	}
	return true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("result cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("result cache set: %w", err)
	}
	return nil
}

// NoopResultCache is used when Redis is not configured.
type NoopResultCache struct{}

func (NoopResultCache) Get(context.Context, string, any) (bool, error) { return false, nil }

func (NoopResultCache) Set(context.Context, string, any, time.Duration) error { return nil }
