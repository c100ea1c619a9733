// Package memory provides an in-process querycache.Cache backed by
// github.com/hashicorp/golang-lru/v2 with per-entry TTLs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/moviecatalog-go/querycache"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSweepInterval = 5 * time.Minute

type entry struct {
	data      []byte
	expiresAt time.Time // zero = no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Cache is a bounded LRU cache. The least recently used entry is evicted once
// maxItems is reached.
type Cache struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *entry]
	now   func() time.Time

	sweep     time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

var _ querycache.Cache = (*Cache)(nil)

// Option customizes a Cache.
type Option func(*Cache)

// WithSweepInterval sets how often expired entries are purged in the
// background. Expired entries are never returned regardless.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweep = d
		}
	}
}

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache holding at most maxItems entries.
func New(maxItems int, opts ...Option) (*Cache, error) {
	cache, err := lru.New[string, *entry](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	c := &Cache{
		cache: cache,
		now:   time.Now,
		sweep: defaultSweepInterval,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()

	return c, nil
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.cache.Get(key)
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if e.expired(c.now()) {
		c.mu.Lock()
		// Only drop the entry we saw; a concurrent Set may have replaced it.
		if cur, ok := c.cache.Peek(key); ok && cur == e {
			c.cache.Remove(key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true, nil
}

// Set stores a copy of data under key.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	e := &entry{data: make([]byte, len(data))}
	copy(e.data, data)
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	c.cache.Add(key, e)
	c.mu.Unlock()
	return nil
}

// Invalidate removes keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.cache.Remove(k)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.cache.Purge()
	c.mu.Unlock()
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Len()
}

// Close stops the sweeper and drops all entries.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	return c.Clear(context.Background())
}

func (c *Cache) cleanupExpired() {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range c.cache.Keys() {
		if e, ok := c.cache.Peek(key); ok && e.expired(now) {
			c.cache.Remove(key)
		}
	}
}
