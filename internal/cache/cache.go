package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/spiritx/internal/domain"
)

// New creates a cache from configuration.
// Community tier gets the in-process LRU; Pro tier gets Redis,
// optionally fronted by the LRU as a two-phase cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU (L1) to Redis (L2).
// Counters always live in L2 so every node sees the same count.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// Get checks L1 and falls back to L2, warming L1 on an L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, namespace, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, namespace, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, namespace, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both tiers. L1 never outlives the requested ttl.
func (c *TwoPhaseCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, namespace, key, value, min(ttl, c.l1TTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, namespace, key, value, ttl)
}

// Delete removes from both tiers.
func (c *TwoPhaseCache) Delete(ctx context.Context, namespace, key string) error {
	if err := c.local.Delete(ctx, namespace, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, namespace, key)
}

func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, namespace, key string, win time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, namespace, key, win)
}

func (c *TwoPhaseCache) ResetCounter(ctx context.Context, namespace, key string) error {
	return c.remote.ResetCounter(ctx, namespace, key)
}

// Ping checks both tiers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both tiers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}
