package configcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/voiceline/internal/types"
)

// DefaultTTL is the validity window for a cached agent configuration.
const DefaultTTL = 300 * time.Second

var (
	ErrInvalidDriver = errors.New("configcache: unknown driver")
	ErrInvalidConfig = errors.New("configcache: invalid driver configuration")
)

// Driver selects the cache backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Cache is a time-bounded cache of per-agent configuration. Get returns the
// cached value only while it is younger than the TTL; a stale or missing
// entry reads as absent and the caller is expected to refetch and Put,
// overwriting the prior entry.
type Cache interface {
	Get(ctx context.Context, id types.AgentID) (*types.AgentConfig, bool)
	Put(ctx context.Context, id types.AgentID, cfg *types.AgentConfig)
	// Sweep drops entries that have passed their TTL and returns how many
	// were removed. Lazy staleness checks make this optional; it exists so
	// housekeeping can bound memory growth across many distinct agents.
	Sweep() int
}

type cacheConfig struct {
	ttl         time.Duration
	redisClient *redis.Client
}

// Option configures the cache factory.
type Option func(*cacheConfig)

// WithTTL overrides the default 300s validity window.
func WithTTL(ttl time.Duration) Option {
	return func(c *cacheConfig) { c.ttl = ttl }
}

// WithRedisClient supplies the client for the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *cacheConfig) { c.redisClient = client }
}

// New creates a Cache for the given driver. The redis driver requires
// WithRedisClient.
func New(driver Driver, opts ...Option) (Cache, error) {
	cfg := &cacheConfig{ttl: DefaultTTL}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = DefaultTTL
	}

	switch driver {
	case DriverMemory:
		return newMemoryCache(cfg.ttl), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisCache(cfg.redisClient, cfg.ttl), nil
	default:
		return nil, ErrInvalidDriver
	}
}
