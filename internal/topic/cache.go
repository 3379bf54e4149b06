// ABOUTME: Thread-safe TTL cache mapping client IDs to forum thread IDs.
// ABOUTME: Avoids a store round-trip on every relayed message.

package topic

import (
	"sync"
	"time"
)

// cacheEntry stores a thread id and its expiry.
type cacheEntry struct {
	threadID int64
	expires  time.Time
}

// Cache is a thread-safe, TTL-based cache of client-to-thread bindings.
// A stale entry is as good as a miss: the binder falls back to the store
// and re-verifies the topic.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]cacheEntry
	ttl     time.Duration
}

// NewCache creates a new binding cache with the specified TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[int64]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached thread id for a client, if present and fresh.
func (c *Cache) Get(clientID int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[clientID]
	if !ok || time.Now().After(entry.expires) {
		return 0, false
	}
	return entry.threadID, true
}

// Put records a client's thread id with a fresh TTL.
func (c *Cache) Put(clientID, threadID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[clientID] = cacheEntry{
		threadID: threadID,
		expires:  time.Now().Add(c.ttl),
	}
}

// Invalidate drops a client's cached thread id.
func (c *Cache) Invalidate(clientID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, clientID)
}
