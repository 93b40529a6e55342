package pool

import (
	"context"
	"testing"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/internal/repository"
	"github.com/domainfleet/engine/internal/rules"
	"github.com/domainfleet/engine/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAllLimiter struct{}

func (allowAllLimiter) TryAcquire(string) bool { return true }

type denyLimiter struct{}

func (denyLimiter) TryAcquire(string) bool { return false }

func newTestManager(t *testing.T, limiter RateLimiter) (*Manager, domain.DomainRepository, domain.EventBus) {
	t.Helper()
	domains := repository.NewInMemoryDomainRepository()
	pools := repository.NewInMemoryPoolRepository()
	bus := domain.NewInMemoryEventBus(nil)
	m := NewManager(domains, pools, limiter, bus, clock.NewRealClock(), DefaultConfig(), rules.DefaultConfig())
	return m, domains, bus
}

func TestTransitionDomain_NoOpWhenAlreadyInTargetPool(t *testing.T) {
	m, domains, _ := newTestManager(t, allowAllLimiter{})
	ctx := context.Background()
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive}))

	require.NoError(t, m.TransitionDomain(ctx, "d1", domain.PoolActive, "noop"))

	d, err := domains.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, d.RotationLog, "a no-op transition must not append a rotation event")
}

func TestTransitionDomain_MovesPoolAndResetsConsecutiveLowScores(t *testing.T) {
	m, domains, bus := newTestManager(t, allowAllLimiter{})
	ctx := context.Background()
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive, ConsecutiveLowScores: 2}))

	var published []domain.Event
	bus.Subscribe(domain.EventRotationTriggered, func(e domain.Event) { published = append(published, e) })

	require.NoError(t, m.TransitionDomain(ctx, "d1", domain.PoolRecovery, "low score streak"))

	d, err := domains.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.PoolRecovery, d.Pool)
	assert.Equal(t, 0, d.ConsecutiveLowScores)
	require.Len(t, d.RotationLog, 1)
	require.Len(t, published, 1)
	assert.Equal(t, domain.PoolRecovery, published[0].TargetPool)
}

func TestTransitionDomain_RateLimited(t *testing.T) {
	m, domains, _ := newTestManager(t, denyLimiter{})
	ctx := context.Background()
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive}))

	err := m.TransitionDomain(ctx, "d1", domain.PoolRecovery, "x")
	var rl *domain.ErrRateLimited
	assert.ErrorAs(t, err, &rl)
}

func TestGetPoolMetrics_ComputesAverageAndRiskFactors(t *testing.T) {
	m, domains, _ := newTestManager(t, allowAllLimiter{})
	ctx := context.Background()
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive, HealthScore: 90}))
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d2", Pool: domain.PoolActive, HealthScore: 40}))

	metrics, err := m.GetPoolMetrics(ctx, domain.PoolActive)
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.TotalDomains)
	assert.Equal(t, 1, metrics.HealthyDomains)
	assert.InDelta(t, 65.0, metrics.AverageScore, 0.01)
	assert.Contains(t, metrics.RiskFactors, "Low average health score")
	assert.Contains(t, metrics.RiskFactors, "High proportion of unhealthy domains")
}

func TestGetPoolMetrics_IsCached(t *testing.T) {
	m, domains, _ := newTestManager(t, allowAllLimiter{})
	ctx := context.Background()
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive, HealthScore: 90}))

	first, err := m.GetPoolMetrics(ctx, domain.PoolActive)
	require.NoError(t, err)

	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d2", Pool: domain.PoolActive, HealthScore: 10}))
	second, err := m.GetPoolMetrics(ctx, domain.PoolActive)
	require.NoError(t, err)
	assert.Equal(t, first.TotalDomains, second.TotalDomains, "cached metrics must not see the new member yet")
}

func TestApplyPoolSettings_CascadesToMembers(t *testing.T) {
	m, domains, _ := newTestManager(t, allowAllLimiter{})
	ctx := context.Background()
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive}))
	require.NoError(t, m.pools.AddMember(ctx, domain.PoolActive, "d1"))

	newSending := domain.SendingSettings{DailyLimit: 50, MinTimeGap: 30}
	require.NoError(t, m.ApplyPoolSettings(ctx, domain.PoolActive, &newSending, nil))

	d, err := domains.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, newSending, d.Sending)
}

func TestCheckGraduation_DelegatesToTransitionRules(t *testing.T) {
	m, domains, _ := newTestManager(t, allowAllLimiter{})
	ctx := context.Background()
	past := time.Now().Add(-22 * 24 * time.Hour)
	require.NoError(t, domains.Upsert(ctx, &domain.Domain{
		ID: "d1", Pool: domain.PoolInitialWarming, PoolEntryDate: past,
		TestHistory: []domain.TestHistoryEntry{{Score: 80}, {Score: 85}, {Score: 90}},
	}))

	eligible, reason, err := m.CheckGraduation(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, eligible)
	assert.Contains(t, reason, "graduation")
}
