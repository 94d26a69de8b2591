// internal/service/planregistry/redis_cache.go
package planregistry

import (
	"context"
	"encoding/json"
	"time"

	"lubripro-service/internal/domain/plan"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const catalogKey = "planregistry:catalog"

// RedisCache shares the catalogue cache across instances. Failures degrade
// to a cache miss; the registry then reloads from the database.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) GetCatalog(ctx context.Context) ([]plan.Plan, bool) {
	raw, err := c.client.Get(ctx, catalogKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("plan catalogue cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var plans []plan.Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		c.logger.Warn("plan catalogue cache corrupt, dropping", zap.Error(err))
		c.Invalidate(ctx)
		return nil, false
	}

	return plans, true
}

func (c *RedisCache) SetCatalog(ctx context.Context, plans []plan.Plan) {
	raw, err := json.Marshal(plans)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, catalogKey, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("plan catalogue cache write failed", zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, catalogKey).Err(); err != nil {
		c.logger.Warn("plan catalogue cache invalidation failed", zap.Error(err))
	}
}
