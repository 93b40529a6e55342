package automation

import (
	"context"
	"testing"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/internal/pool"
	"github.com/domainfleet/engine/internal/provider"
	"github.com/domainfleet/engine/internal/repository"
	"github.com/domainfleet/engine/internal/rules"
	"github.com/domainfleet/engine/pkg/clock"
	"github.com/domainfleet/engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type allowAllLimiter struct{}

func (allowAllLimiter) TryAcquire(string) bool { return true }

type recordingEnqueuer struct {
	jobs []*domain.Job
}

func (r *recordingEnqueuer) Enqueue(j *domain.Job) { r.jobs = append(r.jobs, j) }

type recordingNotifier struct {
	failedRotations []string
}

func (r *recordingNotifier) NotifyFailedRotation(ctx context.Context, domainID, reason string) error {
	r.failedRotations = append(r.failedRotations, domainID)
	return nil
}

type harness struct {
	engine      *Engine
	domains     domain.DomainRepository
	tests       domain.TestRepository
	placement   *provider.FakePlacementProvider
	campaigns   *provider.FakeCampaignPlatform
	poolManager *pool.Manager
	bus         *domain.InMemoryEventBus
	queue       *recordingEnqueuer
	notifier    *recordingNotifier
	clock       *clock.VirtualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	domains := repository.NewInMemoryDomainRepository()
	tests := repository.NewInMemoryTestRepository()
	pools := repository.NewInMemoryPoolRepository()
	placement := provider.NewFakePlacementProvider()
	campaigns := provider.NewFakeCampaignPlatform()
	bus := domain.NewInMemoryEventBus(nil)
	vc := clock.NewVirtualClock(time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC))
	pm := pool.NewManager(domains, pools, allowAllLimiter{}, bus, vc, pool.DefaultConfig(), rules.DefaultConfig())
	queue := &recordingEnqueuer{}
	notifier := &recordingNotifier{}
	engine := NewEngine(domains, tests, placement, campaigns, pm, bus, queue, notifier, vc, logger.NewMockLogger(), DefaultConfig(), rules.DefaultConfig())
	return &harness{
		engine: engine, domains: domains, tests: tests, placement: placement,
		campaigns: campaigns, poolManager: pm, bus: bus, queue: queue, notifier: notifier, clock: vc,
	}
}

func TestHandleTestResults_Graduation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d := &domain.Domain{
		ID: "d1", Name: "sender.example.com", Pool: domain.PoolInitialWarming,
		PoolEntryDate: h.clock.Now().Add(-22 * 24 * time.Hour),
		TestHistory: []domain.TestHistoryEntry{
			{TestID: "t1", Score: 80}, {TestID: "t2", Score: 85}, {TestID: "t3", Score: 82},
		},
	}
	require.NoError(t, h.domains.Upsert(ctx, d))

	var scoreEvents, rotationEvents []domain.Event
	h.bus.Subscribe(domain.EventScoreUpdated, func(e domain.Event) { scoreEvents = append(scoreEvents, e) })
	h.bus.Subscribe(domain.EventRotationTriggered, func(e domain.Event) { rotationEvents = append(rotationEvents, e) })

	h.placement.ScoreFunc = func(string) int { return 86 }
	descriptor, err := h.placement.CreateTest(ctx, d.Name)
	require.NoError(t, err)
	require.NoError(t, h.tests.Create(ctx, &domain.PlacementTest{ID: descriptor.UUID, DomainID: "d1", Status: domain.TestCreated}))

	require.NoError(t, h.engine.HandleTestResults(ctx, descriptor.UUID))

	updated, err := h.domains.Get(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, updated.TestHistory, 4)
	assert.Equal(t, 84, updated.HealthScore, "round(mean(82,86,85)) == 84")
	assert.Equal(t, domain.PoolReadyWaiting, updated.Pool)
	assert.Equal(t, 0, updated.ConsecutiveLowScores)
	require.Len(t, updated.RotationLog, 1)
	assert.Contains(t, updated.RotationLog[0].Reason, "Graduated")

	require.Len(t, scoreEvents, 1)
	require.Len(t, rotationEvents, 1)
}

func TestHandleTestResults_DedupeByTestUUID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := &domain.Domain{ID: "d1", Name: "sender.example.com", Pool: domain.PoolActive,
		TestHistory: []domain.TestHistoryEntry{{TestID: "already-ingested", Score: 90}}}
	require.NoError(t, h.domains.Upsert(ctx, d))
	require.NoError(t, h.tests.Create(ctx, &domain.PlacementTest{ID: "already-ingested", DomainID: "d1", Status: domain.TestCompleted}))

	require.NoError(t, h.engine.HandleTestResults(ctx, "already-ingested"))

	updated, err := h.domains.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, updated.TestHistory, 1, "re-ingesting must not duplicate")
}

func TestExecuteRotation_SwapsCampaignsAndTransitionsBothDomains(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	source := &domain.Domain{
		ID: "A", Name: "a.example.com", ExternalProviderID: "ext-a", Pool: domain.PoolActive,
		ConsecutiveLowScores: 2,
		Campaigns: []domain.CampaignRef{
			{CampaignID: "c1", Status: domain.CampaignActive},
			{CampaignID: "c2", Status: domain.CampaignActive},
		},
	}
	replacement := &domain.Domain{
		ID: "B", Name: "b.example.com", ExternalProviderID: "ext-b", Pool: domain.PoolReadyWaiting,
		HealthMetrics: domain.HealthMetrics{AverageScore: 90},
	}
	require.NoError(t, h.domains.Upsert(ctx, source))
	require.NoError(t, h.domains.Upsert(ctx, replacement))

	require.NoError(t, h.engine.ExecuteRotation(ctx, "A"))

	assert.Len(t, h.campaigns.CampaignDomainCalls, 2)

	gotA, err := h.domains.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, domain.PoolRecovery, gotA.Pool)

	gotB, err := h.domains.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, domain.PoolActive, gotB.Pool)
}

func TestExecuteRotation_NoReplacementFailsWithoutSideEffects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	source := &domain.Domain{ID: "A", Name: "a.example.com", Pool: domain.PoolActive, ConsecutiveLowScores: 2}
	require.NoError(t, h.domains.Upsert(ctx, source))

	err := h.engine.ExecuteRotation(ctx, "A")
	require.Error(t, err)

	gotA, err2 := h.domains.Get(ctx, "A")
	require.NoError(t, err2)
	assert.Equal(t, domain.PoolActive, gotA.Pool, "source must remain untouched")
	assert.Empty(t, h.campaigns.CampaignDomainCalls)
	assert.Len(t, h.notifier.failedRotations, 1)
}

func TestCheckPoolHealth_PublishesWhenBelowThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var events []domain.Event
	h.bus.Subscribe(domain.EventHealthCheckNeeded, func(e domain.Event) { events = append(events, e) })

	score := 62.0
	require.NoError(t, h.engine.CheckPoolHealth(ctx, domain.PoolActive, &score))
	require.Len(t, events, 1)
	assert.True(t, events[0].Urgent)
	assert.Contains(t, events[0].Reason, "62")

	events = nil
	healthyScore := 87.0
	require.NoError(t, h.engine.CheckPoolHealth(ctx, domain.PoolActive, &healthyScore))
	assert.Empty(t, events)
}

func TestRefreshWarmup_RampsUpAndPushesToCampaignPlatform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := &domain.Domain{
		ID: "d1", Name: "a.example.com", Pool: domain.PoolInitialWarming, ExternalProviderID: "ext-a",
		Sending: domain.SendingSettings{DailyLimit: 20},
		Warmup:  domain.WarmupSettings{DailyEmails: 10, RampUp: true, RampUpValue: 3},
	}
	require.NoError(t, h.domains.Upsert(ctx, d))

	var events []domain.Event
	h.bus.Subscribe(domain.EventWarmupUpdate, func(e domain.Event) { events = append(events, e) })

	require.NoError(t, h.engine.RefreshWarmup(ctx, "d1"))

	updated, err := h.domains.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 13, updated.Warmup.DailyEmails)
	require.Len(t, h.campaigns.EmailAccountUpdates, 1)
	require.Len(t, events, 1)
}

func TestRefreshWarmup_NoOpAtSteadyState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := &domain.Domain{
		ID: "d1", Pool: domain.PoolActive,
		Sending: domain.SendingSettings{DailyLimit: 20},
		Warmup:  domain.WarmupSettings{DailyEmails: 20, RampUp: true, RampUpValue: 3},
	}
	require.NoError(t, h.domains.Upsert(ctx, d))

	require.NoError(t, h.engine.RefreshWarmup(ctx, "d1"))

	updated, err := h.domains.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 20, updated.Warmup.DailyEmails)
	assert.Empty(t, h.campaigns.EmailAccountUpdates)
}

func TestMonitorDomainHealth_EnqueuesRotationOnLowAverage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := &domain.Domain{
		ID: "d1", Pool: domain.PoolActive,
		TestHistory: []domain.TestHistoryEntry{{Score: 50}, {Score: 55}, {Score: 60}},
	}
	require.NoError(t, h.domains.Upsert(ctx, d))

	require.NoError(t, h.engine.MonitorDomainHealth(ctx, "d1"))

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, domain.JobRotation, h.queue.jobs[0].Type)
}
