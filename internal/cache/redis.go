// Package cache provides a Redis-backed search result cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MeKo-Tech/glens/internal/search"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces all cache keys.
const KeyPrefix = "glens:search:"

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// kv is the subset of the Redis client used by the cache.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisCache stores search results as JSON with a TTL.
type RedisCache struct {
	client kv
	closer func() error
	ttl    time.Duration
}

// NewRedisCache connects to Redis. It does not ping; call Ping to verify.
func NewRedisCache(config Config) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisCache{client: rdb, closer: rdb.Close, ttl: config.TTL}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get implements search.Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]search.Item, bool, error) {
	val, err := c.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var items []search.Item
	if err := json.Unmarshal(val, &items); err != nil {
		return nil, false, fmt.Errorf("decode cached results: %w", err)
	}
	return items, true, nil
}

// Set implements search.Cache.
func (c *RedisCache) Set(ctx context.Context, key string, items []search.Item) error {
	if items == nil {
		items = []search.Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, KeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
