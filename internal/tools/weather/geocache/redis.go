package geocache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares resolved geocode lookups across service instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb}
}

// NewRedisCacheWithClient wraps an existing client, used by tests.
func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) key(key string) string {
	return "geocode:" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (c *RedisCache) Set(ctx context.Context, key string, e Entry, ttl time.Duration) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Ping verifies the backend is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
