package sharing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/apache/airavata-custos-sub001/pkg/observability"
)

// AccessCache is a Redis-backed read-through cache for access-control
// decisions. Decisions are the hottest read path; mutations invalidate the
// whole tenant's cached decisions rather than tracking per-entity fanout.
type AccessCache struct {
	store   *Store
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
}

// NewAccessCache creates a new access-decision cache layer
func NewAccessCache(store *Store, redisAddr, password string, db int, ttl time.Duration) (*AccessCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &AccessCache{
		store: store,
		redis: client,
		ttl:   ttl,
	}, nil
}

// SetMetrics enables cache hit/miss accounting
func (c *AccessCache) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Client returns the underlying Redis client, for health checks
func (c *AccessCache) Client() *redis.Client {
	return c.redis
}

// Close closes the Redis connection
func (c *AccessCache) Close() error {
	return c.redis.Close()
}

func accessKey(tenantID, entityID, permissionTypeID, username string) string {
	return fmt.Sprintf("access:%s:%s:%s:%s", tenantID, entityID, permissionTypeID, username)
}

// UserHasAccess answers an access check, serving from cache when possible
func (c *AccessCache) UserHasAccess(ctx context.Context, tenantID, entityID, permissionTypeID, username string) (bool, error) {
	key := accessKey(tenantID, entityID, permissionTypeID, username)

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		return cached == "1", nil
	}
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	allowed, err := c.store.UserHasAccess(ctx, tenantID, entityID, permissionTypeID, username)
	if err != nil {
		return false, err
	}

	value := "0"
	if allowed {
		value = "1"
	}
	c.redis.Set(ctx, key, value, c.ttl)

	return allowed, nil
}

// InvalidateTenant drops every cached decision of a tenant. Called after any
// mutation that can change grant state; cascades can touch arbitrary
// descendants, so per-entity invalidation would have to re-walk the tree.
func (c *AccessCache) InvalidateTenant(ctx context.Context, tenantID string) error {
	pattern := fmt.Sprintf("access:%s:*", tenantID)

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cached decisions of tenant %s: %w", tenantID, err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to invalidate cached decisions of tenant %s: %w", tenantID, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
