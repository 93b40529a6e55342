package pool

import (
	"sync"
	"time"

	"github.com/domainfleet/engine/internal/domain"
)

// poolMetricsCache holds the most recently computed Metrics per pool for up
// to a configured TTL, so a sweep or dashboard hitting GetPoolMetrics
// repeatedly doesn't recompute an average over every member domain each
// time. Narrowed from the teacher's generic interface{}-keyed TTL cache to
// the one shape PoolManager actually caches (domain.PoolType -> Metrics),
// since nothing else in this engine needs a general-purpose cache.
type poolMetricsCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[domain.PoolType]cachedMetrics
}

type cachedMetrics struct {
	metrics   Metrics
	expiresAt time.Time
}

func newPoolMetricsCache(ttl time.Duration) *poolMetricsCache {
	return &poolMetricsCache{ttl: ttl, items: make(map[domain.PoolType]cachedMetrics)}
}

// getOrCompute returns the cached Metrics for t if it hasn't expired as of
// now, otherwise it calls compute, caches the result, and returns it.
func (c *poolMetricsCache) getOrCompute(t domain.PoolType, now time.Time, compute func() (Metrics, error)) (Metrics, error) {
	c.mu.Lock()
	if item, ok := c.items[t]; ok && now.Before(item.expiresAt) {
		c.mu.Unlock()
		return item.metrics, nil
	}
	c.mu.Unlock()

	m, err := compute()
	if err != nil {
		return Metrics{}, err
	}

	c.mu.Lock()
	c.items[t] = cachedMetrics{metrics: m, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return m, nil
}

// invalidate drops the cached entry for t, forcing the next getOrCompute
// call to recompute rather than serve a now-stale metrics snapshot.
func (c *poolMetricsCache) invalidate(t domain.PoolType) {
	c.mu.Lock()
	delete(c.items, t)
	c.mu.Unlock()
}
