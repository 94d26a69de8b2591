// internal/service/planregistry/cache.go
package planregistry

import (
	"context"
	"sync"
	"time"

	"lubripro-service/internal/domain/plan"
)

// DefaultCatalogTTL bounds how stale a served catalogue can be.
const DefaultCatalogTTL = 5 * time.Minute

// MemoryCache is a process-local TTL cache of the catalogue. Used in tests
// and in deployments without Redis.
type MemoryCache struct {
	mu        sync.Mutex
	plans     []plan.Plan
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &MemoryCache{ttl: ttl, now: time.Now}
}

func (c *MemoryCache) GetCatalog(_ context.Context) ([]plan.Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.plans == nil || c.now().After(c.expiresAt) {
		return nil, false
	}

	out := make([]plan.Plan, len(c.plans))
	copy(out, c.plans)
	return out, true
}

func (c *MemoryCache) SetCatalog(_ context.Context, plans []plan.Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.plans = make([]plan.Plan, len(plans))
	copy(c.plans, plans)
	c.expiresAt = c.now().Add(c.ttl)
}

func (c *MemoryCache) Invalidate(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.plans = nil
}
