package contentstore

import (
	"context"
	"sync"
	"time"

	"vitrine/core/types"
	"vitrine/observability/metrics"
)

const (
	// DefaultCacheTTL keeps fetched payloads for a day.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultCacheEntries bounds the number of cached payloads.
	DefaultCacheEntries = 1000
)

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cached fronts a Store with a bounded TTL cache. When full, the entry
// closest to expiry is evicted.
type Cached struct {
	next       Store
	backend    string
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	metrics    *metrics.ContentStoreMetrics

	mu      sync.Mutex
	entries map[types.ContentID]cacheEntry
}

// NewCached wraps next. Non-positive ttl or maxEntries fall back to defaults.
func NewCached(next Store, backend string, ttl time.Duration, maxEntries int) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cached{
		next:       next,
		backend:    backend,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		metrics:    metrics.ContentStore(),
		entries:    make(map[types.ContentID]cacheEntry),
	}
}

// SetClock overrides the cache clock for tests.
func (c *Cached) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	c.now = now
}

// Store writes through to the backing store and caches the payload.
func (c *Cached) Store(ctx context.Context, data []byte) (types.ContentID, error) {
	start := time.Now()
	id, err := c.next.Store(ctx, data)
	c.metrics.Observe(c.backend, "store", time.Since(start), err)
	if err != nil {
		return "", err
	}
	c.put(id, data)
	return id, nil
}

// Fetch serves from cache when fresh, otherwise from the backing store.
func (c *Cached) Fetch(ctx context.Context, id types.ContentID) ([]byte, error) {
	if data, ok := c.get(id); ok {
		c.metrics.RecordCacheHit()
		return data, nil
	}
	c.metrics.RecordCacheMiss()
	start := time.Now()
	data, err := c.next.Fetch(ctx, id)
	c.metrics.Observe(c.backend, "fetch", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	c.put(id, data)
	return data, nil
}

// Len returns the number of cached payloads, expired or not.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cached) get(id types.ContentID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, id)
		c.metrics.SetCacheEntries(len(c.entries))
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

func (c *Cached) put(id types.ContentID, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxEntries {
		var oldest types.ContentID
		var oldestAt time.Time
		first := true
		for key, entry := range c.entries {
			if first || entry.expiresAt.Before(oldestAt) {
				oldest, oldestAt, first = key, entry.expiresAt, false
			}
		}
		delete(c.entries, oldest)
	}
	c.entries[id] = cacheEntry{data: append([]byte(nil), data...), expiresAt: c.now().Add(c.ttl)}
	c.metrics.SetCacheEntries(len(c.entries))
}
