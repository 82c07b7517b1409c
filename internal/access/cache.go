package access

import (
	"context"
	"sync"
	"time"
)

// Cache holds resolved permission sets per actor for a bounded TTL. Role to
// permission resolution is stable between role changes, so it is safe to
// cache; the role-change path calls Invalidate synchronously before it
// returns, so a revoked permission is never served from a stale entry.
type Cache interface {
	Get(ctx context.Context, actorID string) (map[Permission]bool, bool)
	Set(ctx context.Context, actorID string, perms map[Permission]bool)
	Invalidate(ctx context.Context, actorID string)
}

type cacheEntry struct {
	perms     map[Permission]bool
	expiresAt time.Time
}

// MemoryCache is the default in-process Cache with per-entry TTL. The clock
// is injectable so TTL behavior is testable without wall-clock waiting.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryCacheOption configures a MemoryCache.
type MemoryCacheOption func(*MemoryCache)

// WithClock overrides the cache's time source.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache builds a cache with the given TTL.
func NewMemoryCache(ttl time.Duration, opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, actorID string) (map[Permission]bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[actorID]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.perms, true
}

func (c *MemoryCache) Set(_ context.Context, actorID string, perms map[Permission]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[actorID] = cacheEntry{perms: perms, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryCache) Invalidate(_ context.Context, actorID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, actorID)
}
