// Package cache provides the namespaced key/value store behind token
// revocation and login throttling.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoNamespace is returned when a caller omits the namespace.
var ErrNoNamespace = errors.New("cache: namespace is required")

// LRUCache is a thread-safe LRU cache with TTL support.
// Used as the Community tier cache and as L1 in two-phase caching.
type LRUCache struct {
	mu       sync.Mutex
	maxSize  int
	items    map[string]*list.Element
	order    *list.List
	counters map[string]*window
	now      func() time.Time
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// window is a fixed counting window that starts on the first hit.
type window struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a new LRU cache holding at most maxSize values.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize:  maxSize,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		counters: make(map[string]*window),
		now:      time.Now,
	}
}

// Get returns the value for key, or nil when absent or expired.
func (c *LRUCache) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if namespace == "" {
		return nil, ErrNoNamespace
	}
	k := joinKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[k]
	if !ok {
		return nil, nil
	}
	e := elem.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}
	c.order.MoveToFront(elem)
	return e.value, nil
}

// Set stores value under key until ttl elapses.
func (c *LRUCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	k := joinKey(namespace, key)
	expires := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		c.order.MoveToFront(elem)
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = expires
		return nil
	}

	c.items[k] = c.order.PushFront(&entry{key: k, value: value, expiresAt: expires})
	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *LRUCache) Delete(ctx context.Context, namespace, key string) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	k := joinKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[k]; ok {
		c.removeElement(elem)
	}
	return nil
}

// IncrementCounter bumps the counter for key and returns the new count.
// A fresh window of length win opens when the previous one has expired.
func (c *LRUCache) IncrementCounter(ctx context.Context, namespace, key string, win time.Duration) (int64, error) {
	if namespace == "" {
		return 0, ErrNoNamespace
	}
	k := joinKey(namespace, key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.counters[k]
	if !ok || now.After(w.expiresAt) {
		c.counters[k] = &window{count: 1, expiresAt: now.Add(win)}
		c.sweepCounters(now)
		return 1, nil
	}
	w.count++
	return w.count, nil
}

// ResetCounter drops the counter for key.
func (c *LRUCache) ResetCounter(ctx context.Context, namespace, key string) error {
	if namespace == "" {
		return ErrNoNamespace
	}
	c.mu.Lock()
	delete(c.counters, joinKey(namespace, key))
	c.mu.Unlock()
	return nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	c.counters = make(map[string]*window)
	return nil
}

// Len returns the number of stored values and the capacity.
func (c *LRUCache) Len() (size, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry).key)
}

// sweepCounters drops expired windows once the map outgrows the value capacity.
func (c *LRUCache) sweepCounters(now time.Time) {
	if len(c.counters) <= c.maxSize {
		return
	}
	for k, w := range c.counters {
		if now.After(w.expiresAt) {
			delete(c.counters, k)
		}
	}
}

func joinKey(namespace, key string) string {
	return namespace + ":" + key
}
