package schema

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nlquery/nlquery/internal/observability"
)

// Cache keeps snapshots per connection identity with a TTL. Concurrent
// misses for the same key share one introspection via singleflight, so a
// burst of requests never stampedes the catalog. A TTL of zero disables
// caching entirely.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	snapshot *Snapshot
	builtAt  time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Snapshot returns the cached snapshot for key, rebuilding through source
// on a miss or after expiry.
func (c *Cache) Snapshot(ctx context.Context, key string, source Introspector) (*Snapshot, error) {
	if c == nil || c.ttl <= 0 {
		return source.Snapshot(ctx)
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.builtAt) < c.ttl {
		observability.ObserveSchemaCacheLookup(true)
		return entry.snapshot, nil
	}
	observability.ObserveSchemaCacheLookup(false)

	value, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.now().Sub(entry.builtAt) < c.ttl {
			return entry.snapshot, nil
		}

		snapshot, err := source.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{snapshot: snapshot, builtAt: c.now()}
		c.mu.Unlock()
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Snapshot), nil
}

// Bound ties a key and source together into an Introspector, so callers
// that only understand the Introspector interface still go through the
// cache.
func (c *Cache) Bound(key string, source Introspector) Introspector {
	return boundIntrospector{cache: c, key: key, source: source}
}

type boundIntrospector struct {
	cache  *Cache
	key    string
	source Introspector
}

func (b boundIntrospector) Snapshot(ctx context.Context) (*Snapshot, error) {
	return b.cache.Snapshot(ctx, b.key, b.source)
}

// Invalidate drops the cached snapshot for key, forcing the next request
// to introspect again.
func (c *Cache) Invalidate(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
