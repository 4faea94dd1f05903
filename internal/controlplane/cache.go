package controlplane

import (
	"sync"
	"time"
)

// ttlCacheTTL is the fixed TTL for every read-side cache (spec.md §4.E),
// 60 seconds.
const ttlCacheTTL = 60 * time.Second

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

// ttlCache is a concurrent map with a single fixed TTL, generalized from the
// teacher's internal/auth/sigv4.go signingKeyCache/credCache pattern since
// Component D needs four structurally identical caches (repository, data
// connection, API key, permissions) instead of the teacher's two.
type ttlCache[V any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{
		entries: make(map[string]cacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// get returns the cached value for key if present and not expired.
func (c *ttlCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// set inserts or overwrites the cached value for key with a fresh TTL.
func (c *ttlCache[V]) set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry[V]{value: value, expires: c.now().Add(c.ttl)}
}
