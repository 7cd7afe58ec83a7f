package recall

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// generation is the second of the two process-wide globals this codebase
// keeps (the first is the shared-database registry in internal/graph).
// It is bumped on every write, maintenance pass, and archive restore;
// cache lookups against a stale generation are treated as misses even if
// their TTL hasn't expired, since the underlying data may have changed.
var generation uint64

// BumpGeneration invalidates every cache entry written before this call.
func BumpGeneration() {
	atomic.AddUint64(&generation, 1)
}

func currentGeneration() uint64 {
	return atomic.LoadUint64(&generation)
}

// CacheKey identifies one cached recall result: a normalized query plus
// the filter and strategy that produced it, so the same query text under
// a different user/session scope or strategy never collides.
type CacheKey struct {
	Query      string
	AgentID    string
	UserID     string
	SessionID  string
	MemoryType string
	Strategy   string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", k.Query, k.AgentID, k.UserID, k.SessionID, k.MemoryType, k.Strategy)
}

type cacheEntry struct {
	ctx        *MemoryContext
	expiresAt  time.Time
	generation uint64
}

// Cache is the L3 Recall Cache: an LRU of recent MemoryContext results,
// isolated per user/session via CacheKey, with a TTL and a generation
// fence so any write anywhere invalidates every cached entry at once
// without having to enumerate and evict them individually.
type Cache struct {
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration
}

// NewCache builds a Cache with the given capacity and TTL.
func NewCache(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	l, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("recall: build cache: %w", err)
	}
	return &Cache{lru: l, ttl: ttl}, nil
}

// Get returns a cloned MemoryContext on a live hit, or ok=false on a
// miss (absent, expired, or generation-stale).
func (c *Cache) Get(key CacheKey, now time.Time) (*MemoryContext, bool) {
	entry, ok := c.lru.Get(key.String())
	if !ok {
		return nil, false
	}
	if now.After(entry.expiresAt) {
		c.lru.Remove(key.String())
		return nil, false
	}
	if entry.generation != currentGeneration() {
		c.lru.Remove(key.String())
		return nil, false
	}
	return entry.ctx.Clone(), true
}

// Put stores a clone of ctx under key, stamped with the current
// generation so a later BumpGeneration invalidates it.
func (c *Cache) Put(key CacheKey, ctx *MemoryContext, now time.Time) {
	c.lru.Add(key.String(), cacheEntry{
		ctx:        ctx.Clone(),
		expiresAt:  now.Add(c.ttl),
		generation: currentGeneration(),
	})
}

// Len reports the number of entries currently cached, for diagnostics.
func (c *Cache) Len() int {
	return c.lru.Len()
}
