package tier

import (
	"log/slog"
	"sync"
	"time"
)

const aggCacheTTL = 300 * time.Second

// aggCache holds formatted popular-aggregation answers keyed by aggregation
// name. It is local to the router and deliberately shares nothing with the
// SQL client's query cache.
type aggCache struct {
	mu      sync.RWMutex
	entries map[string]*aggEntry
	ttl     time.Duration
}

type aggEntry struct {
	answer    string
	rows      []map[string]any
	createdAt time.Time
}

func newAggCache(ttl time.Duration) *aggCache {
	return &aggCache{
		entries: make(map[string]*aggEntry),
		ttl:     ttl,
	}
}

func (c *aggCache) get(name string) (*aggEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(entry.createdAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, name)
		c.mu.Unlock()
		return nil, false
	}

	slog.Info("[ROUTER] aggregation cache hit", "aggregation", name)
	return entry, true
}

func (c *aggCache) set(name, answer string, rows []map[string]any) {
	c.mu.Lock()
	c.entries[name] = &aggEntry{answer: answer, rows: rows, createdAt: time.Now()}
	c.mu.Unlock()
}
