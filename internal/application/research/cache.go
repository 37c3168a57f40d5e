// Package research provides a TTL cache in front of the research generation
// call so repeat keywords on a domain do not re-spend AI budget.
package research

import (
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultTTL keeps research fresh enough for a day of scheduling.
const DefaultTTL = 24 * time.Hour

// Cache memoizes research payloads by key. Safe for concurrent use.
type Cache struct {
	c *gocache.Cache
}

// New creates a cache with the given TTL; zero means DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{c: gocache.New(ttl, ttl/2)}
}

// Do returns the cached payload for key, or runs fn and caches its result.
// The second return reports a cache hit. Errors are never cached.
func (c *Cache) Do(key string, fn func() (json.RawMessage, error)) (json.RawMessage, bool, error) {
	if v, ok := c.c.Get(key); ok {
		if raw, ok := v.(json.RawMessage); ok {
			return raw, true, nil
		}
	}
	raw, err := fn()
	if err != nil {
		return nil, false, err
	}
	c.c.SetDefault(key, raw)
	return raw, false, nil
}

// Invalidate drops one key, used when an article is manually regenerated.
func (c *Cache) Invalidate(key string) {
	c.c.Delete(key)
}
