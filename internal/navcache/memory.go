package navcache

import (
	"sync"
	"time"
)

// MemoryCache keeps entries in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(key string, ttl time.Duration) (Entry, bool) {
	e, ok := c.Peek(key)
	if !ok || !e.Fresh(c.now(), ttl) {
		return Entry{}, false
	}
	return e, true
}

func (c *MemoryCache) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	e.Payload = clone(e.Payload)
	return e, true
}

func (c *MemoryCache) Put(key string, payload []byte) error {
	e := Entry{Key: key, Payload: clone(payload), FetchedAt: c.now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Invalidate(key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) InvalidateAll() error {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Stats() (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{Backend: "memory", Entries: len(c.entries)}
	for _, e := range c.entries {
		s.TotalBytes += int64(len(e.Payload))
	}
	return s, nil
}
