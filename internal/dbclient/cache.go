package dbclient

import (
	"crypto/md5"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kdt-ai/neo-backend/internal/model"
)

const (
	queryCacheTTL        = 300 * time.Second
	queryCacheMaxEntries = 100
)

// queryCache holds recent query results keyed by md5(source:normalized_sql).
// Thread-safe via sync.RWMutex. Bounded at queryCacheMaxEntries; when full,
// the oldest half is evicted on write.
type queryCache struct {
	mu      sync.RWMutex
	entries map[string]*queryCacheEntry
	ttl     time.Duration
}

type queryCacheEntry struct {
	result     *model.QueryResult
	insertedAt time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		entries: make(map[string]*queryCacheEntry),
		ttl:     ttl,
	}
}

// cacheKey normalizes the query (trim + lowercase) for keying only; the
// transport always carries the original text.
func cacheKey(source model.Source, query string) string {
	normalized := fmt.Sprintf("%s:%s", source, strings.ToLower(strings.TrimSpace(query)))
	return fmt.Sprintf("%x", md5.Sum([]byte(normalized)))
}

func (c *queryCache) get(key string) (*model.QueryResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Since(entry.insertedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	slog.Info("[QUERY-CACHE] hit",
		"key", key[:8],
		"age_ms", time.Since(entry.insertedAt).Milliseconds(),
	)
	return entry.result, true
}

func (c *queryCache) set(key string, result *model.QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= queryCacheMaxEntries {
		c.evictOldestHalfLocked()
	}
	c.entries[key] = &queryCacheEntry{result: result, insertedAt: time.Now()}
}

// evictOldestHalfLocked drops the oldest half of the entries by insertion time.
// Caller must hold the write lock.
func (c *queryCache) evictOldestHalfLocked() {
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{k, e.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	for _, a := range all[:len(all)/2] {
		delete(c.entries, a.key)
	}
	slog.Info("[QUERY-CACHE] evicted oldest half", "remaining", len(c.entries))
}

func (c *queryCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *queryCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*queryCacheEntry)
	c.mu.Unlock()
}

// CacheStats reports the state of the query cache for the stats endpoints.
type CacheStats struct {
	Entries    int `json:"entries"`
	MaxEntries int `json:"max_entries"`
	TTLSeconds int `json:"ttl_seconds"`
}

func (c *queryCache) stats() CacheStats {
	return CacheStats{
		Entries:    c.len(),
		MaxEntries: queryCacheMaxEntries,
		TTLSeconds: int(c.ttl.Seconds()),
	}
}
