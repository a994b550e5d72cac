package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "spiritx:"

// incrWindow increments KEYS[1] and arms its expiry on the first hit.
var incrWindow = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return current
`)

// RedisCache implements domain.Cache on Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the value for key, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if namespace == "" {
		return nil, ErrNoNamespace
	}
	val, err := c.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores value under key until ttl elapses.
func (c *RedisCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	return c.client.Set(ctx, redisKey(namespace, key), value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, namespace, key string) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	return c.client.Del(ctx, redisKey(namespace, key)).Err()
}

// IncrementCounter atomically increments a windowed counter.
func (c *RedisCache) IncrementCounter(ctx context.Context, namespace, key string, win time.Duration) (int64, error) {
	if namespace == "" {
		return 0, ErrNoNamespace
	}
	return incrWindow.Run(ctx, c.client, []string{counterKey(namespace, key)}, win.Milliseconds()).Int64()
}

// ResetCounter deletes the counter for key.
func (c *RedisCache) ResetCounter(ctx context.Context, namespace, key string) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	return c.client.Del(ctx, counterKey(namespace, key)).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(namespace, key string) string {
	return keyPrefix + joinKey(namespace, key)
}

func counterKey(namespace, key string) string {
	return keyPrefix + "counter:" + joinKey(namespace, key)
}
