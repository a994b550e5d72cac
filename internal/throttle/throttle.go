// Package throttle limits how often a key may attempt an action inside a
// fixed window. Login attempts per username are the only current user.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/spiritx/internal/domain"
)

const (
	DefaultLimit  = 5
	DefaultWindow = 5 * time.Minute
)

// Decision is the outcome of an Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int64
	RetryAfter time.Duration
}

// Limiter counts attempts in domain.Cache under a single namespace.
type Limiter struct {
	cache     domain.Cache
	namespace string
	limit     int64
	window    time.Duration
}

// NewLimiter creates a limiter. Zero limit or window fall back to the defaults.
func NewLimiter(cache domain.Cache, namespace string, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		cache:     cache,
		namespace: namespace,
		limit:     int64(limit),
		window:    window,
	}
}

// Allow records one attempt for key and reports whether it is within the limit.
// Keys are case-insensitive so "Alice" and "alice" share a window.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	key = normalize(key)
	if key == "" {
		return Decision{}, fmt.Errorf("%w: throttle key is required", domain.ErrInvalidInput)
	}

	count, err := l.cache.IncrementCounter(ctx, l.namespace, key, l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to count attempt: %w", err)
	}

	d := Decision{Allowed: count <= l.limit, Count: count, Limit: l.limit}
	if !d.Allowed {
		d.RetryAfter = l.window
	}
	return d, nil
}

// Reset clears the attempts recorded for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.cache.ResetCounter(ctx, l.namespace, normalize(key))
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
