package market

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// responseCache is an in-memory TTL cache for raw provider responses.
// Expired entries are kept so callers can explicitly read them as a stale
// fallback when the upstream is down.
type responseCache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	now   func() time.Time
}

func newResponseCache() *responseCache {
	return &responseCache{store: make(map[string]cacheEntry), now: time.Now}
}

func (c *responseCache) set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
}

// get returns the cached value for key. With allowStale, expired entries are
// returned as well; otherwise expired entries read as a miss.
func (c *responseCache) get(key string, allowStale bool) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.store[key]
	if !ok {
		return nil, false
	}
	if !allowStale && c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}
