package figma

import (
	"sync"
	"time"
)

// cacheEntry holds cached styles with a timestamp for TTL expiration.
type cacheEntry struct {
	styles    []Style
	fetchedAt time.Time
}

// Cache is a thread-safe in-memory style cache with TTL expiration.
// Expired entries are cleaned up lazily on Get() — no background goroutine.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache creates a new cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get returns cached styles if present and not expired.
func (c *Cache) Get(fileKey string) ([]Style, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fileKey]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired — clean up lazily.
		// Re-check under write lock: a concurrent Set() may have replaced
		// the entry with a fresh one between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[fileKey]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, fileKey)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.styles, true
}

// Set stores styles with the current timestamp.
func (c *Cache) Set(fileKey string, styles []Style) {
	c.mu.Lock()
	c.entries[fileKey] = &cacheEntry{
		styles:    styles,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}
