package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache holds the storefront view cache and the shared rate limit counters
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCache connects to redisURL and fails fast when the server does not answer a ping
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger := slog.Default()
	logger.Info("redis connection established", "addr", opt.Addr, "db", opt.DB)
	return &RedisCache{client: client, logger: logger}, nil
}

func (c *RedisCache) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// setJSON stores value encoded as JSON
func (c *RedisCache) setJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, expiration).Err()
}

// getJSON decodes the cached value into dest. A missing key returns redis.Nil.
func (c *RedisCache) getJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// GetOrSet returns the cached value for key, or loads it with fn and caches the result.
// Redis being down degrades to calling fn on every request; a load error is never cached.
func GetOrSet[T any](c *RedisCache, ctx context.Context, key string, expiration time.Duration, fn func() (T, error)) (T, error) {
	var cached T
	err := c.getJSON(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "cache read failed, loading from source", "key", key, "err", err)
	}

	result, err := fn()
	if err != nil {
		return result, err
	}
	if err := c.setJSON(ctx, key, result, expiration); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "key", key, "err", err)
	}
	return result, nil
}

// Delete removes a key from cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// IncrWindow counts a hit on a fixed window counter. The first hit starts the window's TTL.
func (c *RedisCache) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Ping reports whether Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
