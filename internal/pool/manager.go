// Package pool implements PoolManager (spec §4.8): pool membership,
// settings application, graduation checks, and metrics aggregation.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/internal/rules"
	"github.com/domainfleet/engine/pkg/clock"
)

// RateLimiter is the subset of ratelimiter.RateLimiter PoolManager depends on.
type RateLimiter interface {
	TryAcquire(domainID string) bool
}

// Config holds the thresholds PoolManager needs beyond rules.Config: the
// minimum health score for a domain to count as "healthy" in pool metrics
// (spec §4.8, default 75) and the unhealthy-proportion risk threshold.
type Config struct {
	MinHealthScore       int
	UnhealthyRiskPct     float64
	MetricsCacheTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{MinHealthScore: 75, UnhealthyRiskPct: 0.20, MetricsCacheTTL: 30 * time.Second}
}

// Metrics is PoolManager.getPoolMetrics' return shape.
type Metrics struct {
	TotalDomains   int
	HealthyDomains int
	AverageScore   float64
	RiskFactors    []string
	LastUpdated    time.Time
}

// Manager implements PoolManager.
type Manager struct {
	domains domain.DomainRepository
	pools   domain.PoolRepository
	limiter RateLimiter
	bus     domain.EventBus
	clock   clock.Clock
	cfg     Config
	rcfg    rules.Config
	metrics *poolMetricsCache
}

func NewManager(domains domain.DomainRepository, pools domain.PoolRepository, limiter RateLimiter, bus domain.EventBus, c clock.Clock, cfg Config, rcfg rules.Config) *Manager {
	return &Manager{
		domains: domains, pools: pools, limiter: limiter, bus: bus, clock: c,
		cfg: cfg, rcfg: rcfg, metrics: newPoolMetricsCache(cfg.MetricsCacheTTL),
	}
}

// InitializePool upserts the single pool row for t with its default settings
// and automation rules, leaving membership untouched if the row exists.
func (m *Manager) InitializePool(ctx context.Context, t domain.PoolType, sending domain.SendingSettings, warmup domain.WarmupSettings, autoRules domain.PoolAutomationRules) error {
	existing, err := m.pools.Get(ctx, t)
	members := []string(nil)
	if err == nil {
		members = existing.MemberIDs
	}
	return m.pools.Upsert(ctx, &domain.Pool{
		Type: t, Sending: sending, Warmup: warmup, AutomationRules: autoRules, MemberIDs: members,
	})
}

// TransitionDomain moves a domain to target, rate-limit gated. Transitioning
// into the domain's current pool is a no-op success (spec §8's idempotence
// law). Every other move: removes source membership, adds target
// membership, resets consecutiveLowScores, appends a rotation event, and
// publishes RotationTriggered.
func (m *Manager) TransitionDomain(ctx context.Context, domainID string, target domain.PoolType, reason string) error {
	d, err := m.domains.Get(ctx, domainID)
	if err != nil {
		return err
	}
	if d.Pool == target {
		return nil
	}
	if !m.limiter.TryAcquire(domainID) {
		return &domain.ErrRateLimited{DomainID: domainID, RetryAt: m.clock.Now().Add(time.Minute)}
	}

	sourcePool := d.Pool
	now := m.clock.Now()
	ev := domain.RotationEvent{
		At: now, FromPool: sourcePool, ToPool: target,
		Action: "rotated_out", Reason: reason, CampaignIDs: d.ActiveCampaignIDs(),
	}

	updated, err := m.domains.AppendRotationEvent(ctx, domainID, target, ev)
	if err != nil {
		return err
	}
	updated, err = m.domains.UpdateConditional(ctx, domainID, func(cur *domain.Domain) error {
		cur.ConsecutiveLowScores = 0
		return nil
	})
	if err != nil {
		return err
	}

	if err := m.pools.RemoveMember(ctx, sourcePool, domainID); err != nil {
		return err
	}
	if err := m.pools.AddMember(ctx, target, domainID); err != nil {
		return err
	}

	m.metrics.invalidate(sourcePool)
	m.metrics.invalidate(target)

	m.bus.Publish(domain.Event{
		Type: domain.EventRotationTriggered, DomainID: domainID, Timestamp: now,
		TargetPool: target, Reason: reason, CampaignIDs: updated.RotationLog[len(updated.RotationLog)-1].CampaignIDs,
	})
	return nil
}

// ApplyPoolSettings merge-updates a pool's settings and cascades the new
// sending/warmup policy to every member domain.
func (m *Manager) ApplyPoolSettings(ctx context.Context, t domain.PoolType, sending *domain.SendingSettings, warmup *domain.WarmupSettings) error {
	p, err := m.pools.Get(ctx, t)
	if err != nil {
		return err
	}
	if sending != nil {
		p.Sending = *sending
	}
	if warmup != nil {
		p.Warmup = *warmup
	}
	if err := m.pools.Upsert(ctx, p); err != nil {
		return err
	}
	for _, id := range p.MemberIDs {
		if _, err := m.domains.UpdateConditional(ctx, id, func(d *domain.Domain) error {
			if sending != nil {
				d.Sending = *sending
			}
			if warmup != nil {
				d.Warmup = *warmup
			}
			return nil
		}); err != nil {
			return fmt.Errorf("cascade settings to domain %s: %w", id, err)
		}
	}
	m.metrics.invalidate(t)
	return nil
}

// CheckGraduation is a thin wrapper over TransitionRules for a domain's
// current pool.
func (m *Manager) CheckGraduation(ctx context.Context, domainID string) (eligible bool, reason string, err error) {
	d, err := m.domains.Get(ctx, domainID)
	if err != nil {
		return false, "", err
	}
	dec := rules.Evaluate(d, d.HasActiveCampaign(), m.rcfg, m.clock.Now())
	return dec.ShouldTransition, dec.Reason, nil
}

// GetPoolMetrics aggregates health across a pool's members, cached for
// MetricsCacheTTL to absorb bursts of dashboard/sweep callers.
func (m *Manager) GetPoolMetrics(ctx context.Context, t domain.PoolType) (Metrics, error) {
	return m.metrics.getOrCompute(t, m.clock.Now(), func() (Metrics, error) {
		return m.computeMetrics(ctx, t)
	})
}

func (m *Manager) computeMetrics(ctx context.Context, t domain.PoolType) (Metrics, error) {
	members, err := m.domains.ListByPool(ctx, t)
	if err != nil {
		return Metrics{}, err
	}
	metrics := Metrics{TotalDomains: len(members), LastUpdated: m.clock.Now()}
	if len(members) == 0 {
		return metrics, nil
	}
	var sum int
	for _, d := range members {
		sum += d.HealthScore
		if d.HealthScore >= m.cfg.MinHealthScore {
			metrics.HealthyDomains++
		}
	}
	metrics.AverageScore = float64(sum) / float64(len(members))

	if metrics.AverageScore < float64(m.cfg.MinHealthScore) {
		metrics.RiskFactors = append(metrics.RiskFactors, "Low average health score")
	}
	unhealthy := len(members) - metrics.HealthyDomains
	if float64(unhealthy)/float64(len(members)) > m.cfg.UnhealthyRiskPct {
		metrics.RiskFactors = append(metrics.RiskFactors, "High proportion of unhealthy domains")
	}
	return metrics, nil
}
