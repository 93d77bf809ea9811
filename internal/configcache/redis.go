package configcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/voiceline/internal/types"
)

const redisKeyPrefix = "agentcfg:"

// redisCache stores entries as JSON values with a server-side expiry, so the
// TTL bound is enforced by Redis itself and a worker fleet shares one cache.
// Cache errors degrade to a miss; the remote config store stays the source of
// truth.
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func newRedisCache(client *redis.Client, ttl time.Duration) *redisCache {
	return &redisCache{client: client, ttl: ttl}
}

func (c *redisCache) key(id types.AgentID) string {
	return redisKeyPrefix + string(id)
}

func (c *redisCache) Get(ctx context.Context, id types.AgentID) (*types.AgentConfig, bool) {
	val, err := c.client.Get(ctx, c.key(id)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("config cache read failed", "agent_id", string(id), "error", err)
		return nil, false
	}

	var cfg types.AgentConfig
	if err := json.Unmarshal([]byte(val), &cfg); err != nil {
		slog.Warn("config cache entry corrupt", "agent_id", string(id), "error", err)
		return nil, false
	}
	return &cfg, true
}

func (c *redisCache) Put(ctx context.Context, id types.AgentID, cfg *types.AgentConfig) {
	val, err := json.Marshal(cfg)
	if err != nil {
		slog.Warn("config cache marshal failed", "agent_id", string(id), "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(id), val, c.ttl).Err(); err != nil {
		slog.Warn("config cache write failed", "agent_id", string(id), "error", err)
	}
}

// Sweep is a no-op for the redis driver: expiry is server-side.
func (c *redisCache) Sweep() int { return 0 }
