package configcache

import (
	"context"
	"sync"
	"time"

	"github.com/user/voiceline/internal/types"
)

type memoryEntry struct {
	config     *types.AgentConfig
	capturedAt time.Time
}

// memoryCache holds entries in a mutex-guarded map. Staleness is checked
// lazily on Get; Sweep exists for periodic housekeeping.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[types.AgentID]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func newMemoryCache(ttl time.Duration) *memoryCache {
	return &memoryCache{
		entries: make(map[types.AgentID]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *memoryCache) Get(_ context.Context, id types.AgentID) (*types.AgentConfig, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.capturedAt) >= c.ttl {
		// Stale reads as absent; the refetch overwrites via Put.
		return nil, false
	}
	return entry.config, true
}

func (c *memoryCache) Put(_ context.Context, id types.AgentID, cfg *types.AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = memoryEntry{config: cfg, capturedAt: c.now()}
}

func (c *memoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for id, entry := range c.entries {
		if now.Sub(entry.capturedAt) >= c.ttl {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}
