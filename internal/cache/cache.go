// Package cache provides a TTL-aware response cache for tool calls.
//
// The cache is TTL-agnostic: callers supply the TTL at Set time (the
// gateway owns the per-tool TTL classes). Expiry is checked only in Get:
// an expired entry is deleted on read and treated as absent. All access is
// serialized behind a single mutex since tool calls are dispatched
// concurrently.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	value     string
	fetchedAt time.Time
	ttl       time.Duration
}

// Cache is a mutex-guarded key/value store with per-entry TTL.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Key builds a deterministic cache key from a tool name and its arguments.
// Arguments are sorted so call sites with different map iteration orders
// produce the same key.
func Key(tool string, args map[string]string) string {
	if len(args) == 0 {
		return tool
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(tool)
	for _, k := range keys {
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(args[k])
	}
	return b.String()
}

// Get returns the cached value for key, or ("", false) when absent or
// expired. Expired entries are evicted here; this is the sole expiry check.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(e.fetchedAt) > e.ttl {
		delete(c.entries, key)
		return "", false
	}
	return e.value, true
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, fetchedAt: c.now(), ttl: ttl}
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateByPrefix removes every entry whose key begins with the given
// tool name (e.g. all cached balances after a transfer executes).
func (c *Cache) InvalidateByPrefix(tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, tool) {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll clears the cache (session reset).
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of entries, including any not yet lazily evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
