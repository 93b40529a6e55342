// Package automation implements AutomationEngine (spec §4.9), the top-level
// orchestrator that schedules placement tests, ingests their results,
// monitors domain health, and drives rotations.
package automation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/internal/pool"
	"github.com/domainfleet/engine/internal/rules"
	"github.com/domainfleet/engine/pkg/clock"
	"github.com/domainfleet/engine/pkg/logger"
)

// JobEnqueuer is the subset of queue.JobQueue the engine depends on, kept as
// a narrow interface so this package never needs to import queue.
type JobEnqueuer interface {
	Enqueue(job *domain.Job)
}

// NotificationPublisher is the subset of notify.Service the engine needs.
type NotificationPublisher interface {
	NotifyFailedRotation(ctx context.Context, domainID, reason string) error
}

// Config holds the cadences and thresholds named in spec §4.9 and §6.
type Config struct {
	ActiveTestCadence      time.Duration
	DefaultTestCadence     time.Duration
	HealthSampleSize       int
	HealthCriticalAvg      float64
	PoolHealthCriticalPct  float64
	ReplacementMinScore    int
}

func DefaultConfig() Config {
	return Config{
		ActiveTestCadence:     84 * time.Hour, // 3.5 days
		DefaultTestCadence:    21 * 24 * time.Hour,
		HealthSampleSize:      5,
		HealthCriticalAvg:     65,
		PoolHealthCriticalPct: 70,
		ReplacementMinScore:   85,
	}
}

// Engine implements AutomationEngine.
type Engine struct {
	domains    domain.DomainRepository
	tests      domain.TestRepository
	placement  domain.PlacementProvider
	campaigns  domain.CampaignPlatform
	pools      *pool.Manager
	bus        domain.EventBus
	queue      JobEnqueuer
	notify     NotificationPublisher
	clock      clock.Clock
	log        logger.Logger
	cfg        Config
	rcfg       rules.Config
	locks      *domainLocks
}

func NewEngine(
	domains domain.DomainRepository,
	tests domain.TestRepository,
	placement domain.PlacementProvider,
	campaigns domain.CampaignPlatform,
	pools *pool.Manager,
	bus domain.EventBus,
	queue JobEnqueuer,
	notify NotificationPublisher,
	c clock.Clock,
	log logger.Logger,
	cfg Config,
	rcfg rules.Config,
) *Engine {
	return &Engine{
		domains: domains, tests: tests, placement: placement, campaigns: campaigns,
		pools: pools, bus: bus, queue: queue, notify: notify, clock: c, log: log,
		cfg: cfg, rcfg: rcfg, locks: newDomainLocks(),
	}
}

func (e *Engine) testCadence(t domain.PoolType) time.Duration {
	if t == domain.PoolActive {
		return e.cfg.ActiveTestCadence
	}
	return e.cfg.DefaultTestCadence
}

// SchedulePoolTests schedules the next test for every domain in poolType.
func (e *Engine) SchedulePoolTests(ctx context.Context, poolType domain.PoolType) error {
	members, err := e.domains.ListByPool(ctx, poolType)
	if err != nil {
		return fmt.Errorf("list pool members: %w", err)
	}
	for _, d := range members {
		if err := e.ScheduleNextTest(ctx, d); err != nil {
			e.log.WithFields(map[string]interface{}{"domain_id": d.ID, "error": err.Error()}).
				Error("failed to schedule test for domain")
		}
	}
	return nil
}

// ScheduleNextTest sets d's next test time, refreshes its health metrics
// from recent scores, enqueues a test job, and publishes TestScheduled.
func (e *Engine) ScheduleNextTest(ctx context.Context, d *domain.Domain) error {
	unlock := e.locks.lockBoth(d.ID, d.ID)
	defer unlock()
	return e.scheduleNextTest(ctx, d)
}

// scheduleNextTest is ScheduleNextTest for callers already holding d's lock.
func (e *Engine) scheduleNextTest(ctx context.Context, d *domain.Domain) error {
	next := e.clock.Now().Add(e.testCadence(d.Pool))
	updated, err := e.domains.UpdateConditional(ctx, d.ID, func(cur *domain.Domain) error {
		cur.TestSchedule.NextTest = next
		cur.HealthMetrics = computeHealthMetrics(cur, e.cfg.HealthSampleSize, e.clock.Now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist test schedule: %w", err)
	}

	if e.queue != nil {
		e.queue.Enqueue(&domain.Job{
			Type: domain.JobTest, DomainID: updated.ID, Priority: domain.PriorityMedium,
			NotBefore: next, Payload: domain.JobPayload{Test: &domain.TestJobPayload{DomainID: updated.ID}},
		})
	}
	e.bus.Publish(domain.Event{
		Type: domain.EventTestScheduled, DomainID: updated.ID, Timestamp: e.clock.Now(),
	})
	return nil
}

func computeHealthMetrics(d *domain.Domain, sampleSize int, now time.Time) domain.HealthMetrics {
	scores := d.LastNScores(sampleSize)
	if len(scores) == 0 {
		return domain.HealthMetrics{UpdatedAt: now}
	}
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return domain.HealthMetrics{
		AverageScore: float64(sum) / float64(len(scores)),
		SampleSize:   len(scores),
		UpdatedAt:    now,
	}
}

// ExecuteTest creates a placement test for domainID via the provider and
// records the in-flight test id on the domain (invariant 4).
func (e *Engine) ExecuteTest(ctx context.Context, domainID string) error {
	unlock := e.locks.lockBoth(domainID, domainID)
	defer unlock()

	d, err := e.domains.Get(ctx, domainID)
	if err != nil {
		return err
	}
	if d.ActiveTestID != "" {
		return nil // already has an outstanding test; invariant 4
	}

	descriptor, err := e.placement.CreateTest(ctx, d.Name)
	if err != nil {
		return &domain.ErrTransient{Op: "CreateTest", Err: err}
	}

	testEmails := make([]domain.TestRecord, 0, len(descriptor.TestEmails))
	for _, te := range descriptor.TestEmails {
		testEmails = append(testEmails, domain.TestRecord{Email: te.Email, Provider: te.Provider})
	}
	if err := e.tests.Create(ctx, &domain.PlacementTest{
		ID: descriptor.UUID, DomainID: domainID, CreatedAt: e.clock.Now(),
		Status: domain.TestCreated, TestEmails: testEmails,
	}); err != nil {
		return fmt.Errorf("create placement test record: %w", err)
	}

	_, err = e.domains.UpdateConditional(ctx, domainID, func(cur *domain.Domain) error {
		cur.ActiveTestID = descriptor.UUID
		return nil
	})
	return err
}

// HandleTestResults fetches test results from the provider and, once
// complete, ingests a new test-history entry, updates health score and
// consecutive-low-score counter, evaluates TransitionRules, and schedules
// the next test. Re-ingesting an already-recorded test is a no-op
// (dedupe by test uuid, spec §8).
func (e *Engine) HandleTestResults(ctx context.Context, testUUID string) error {
	test, err := e.tests.Get(ctx, testUUID)
	if err != nil {
		return err
	}

	unlock := e.locks.lockBoth(test.DomainID, test.DomainID)
	defer unlock()

	d, err := e.domains.Get(ctx, test.DomainID)
	if err != nil {
		return err
	}
	if alreadyIngested(d, testUUID) {
		return nil
	}

	result, err := e.placement.GetTest(ctx, testUUID)
	if err != nil {
		return &domain.ErrTransient{Op: "GetTest", Err: err}
	}
	if result.Status != domain.TestCompleted {
		test.Status = result.Status
		return e.tests.Update(ctx, test)
	}

	completedAt := e.clock.Now()
	if result.CompletedAt != nil {
		completedAt = *result.CompletedAt
	}
	test.Status = domain.TestCompleted
	test.OverallScore = result.OverallScore
	test.TestEmails = result.TestEmails
	test.CompletedAt = &completedAt
	for _, r := range result.TestEmails {
		if r.Folder == "inbox" {
			test.Inbox++
		} else if r.Folder == "spam" {
			test.Spam++
		}
	}
	if err := e.tests.Update(ctx, test); err != nil {
		return fmt.Errorf("persist completed test: %w", err)
	}

	updated, err := e.domains.UpdateConditional(ctx, d.ID, func(cur *domain.Domain) error {
		entry := domain.TestHistoryEntry{
			TestID: testUUID, CompletedAt: completedAt, Score: result.OverallScore,
			Inbox: test.Inbox, Spam: test.Spam,
		}
		cur.TestHistory = append(cur.TestHistory, entry)
		if len(cur.TestHistory) > 10 {
			cur.TestHistory = cur.TestHistory[len(cur.TestHistory)-10:]
		}
		cur.HealthScore = rules.RoundedHealthScore(cur)
		if result.OverallScore < e.rcfg.MinScore {
			cur.ConsecutiveLowScores++
		} else {
			cur.ConsecutiveLowScores = 0
		}
		cur.ActiveTestID = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist test ingest: %w", err)
	}

	e.bus.Publish(domain.Event{
		Type: domain.EventScoreUpdated, DomainID: updated.ID, Timestamp: e.clock.Now(),
		Score: updated.HealthScore,
	})

	dec := rules.Evaluate(updated, updated.HasActiveCampaign(), e.rcfg, e.clock.Now())
	if dec.ShouldTransition {
		if err := e.pools.TransitionDomain(ctx, updated.ID, dec.TargetPool, dec.Reason); err != nil {
			e.log.WithFields(map[string]interface{}{"domain_id": updated.ID, "error": err.Error()}).
				Error("graduation transition failed")
		}
		updated, err = e.domains.Get(ctx, updated.ID)
		if err != nil {
			return err
		}
	}

	return e.scheduleNextTest(ctx, updated)
}

func alreadyIngested(d *domain.Domain, testUUID string) bool {
	for _, h := range d.TestHistory {
		if h.TestID == testUUID {
			return true
		}
	}
	return false
}

// MonitorDomainHealth refreshes a domain's rolling health metrics and, if
// its recent performance crossed the rotation threshold, publishes
// RotationTriggered and enqueues a rotation job.
func (e *Engine) MonitorDomainHealth(ctx context.Context, domainID string) error {
	unlock := e.locks.lockBoth(domainID, domainID)
	defer unlock()

	updated, err := e.domains.UpdateConditional(ctx, domainID, func(cur *domain.Domain) error {
		cur.HealthMetrics = computeHealthMetrics(cur, e.cfg.HealthSampleSize, e.clock.Now())
		return nil
	})
	if err != nil {
		return err
	}

	needsRotation := updated.ConsecutiveLowScores >= e.rcfg.MaxConsecutiveLow ||
		(updated.HealthMetrics.SampleSize > 0 && updated.HealthMetrics.AverageScore < e.cfg.HealthCriticalAvg)
	if !needsRotation {
		return nil
	}

	e.bus.Publish(domain.Event{
		Type: domain.EventRotationTriggered, DomainID: domainID, Timestamp: e.clock.Now(),
		Reason: "Health check triggered rotation", Urgent: true,
	})
	if e.queue != nil {
		e.queue.Enqueue(&domain.Job{
			Type: domain.JobRotation, DomainID: domainID, Priority: domain.PriorityHigh,
			Payload: domain.JobPayload{Rotation: &domain.RotationJobPayload{DomainID: domainID}},
		})
	}
	return nil
}

// CheckPoolHealth aggregates average score across a pool (or uses
// overrideScore, mainly for tests and scenario replays) and publishes
// HealthCheckNeeded when it falls below the critical threshold.
func (e *Engine) CheckPoolHealth(ctx context.Context, poolType domain.PoolType, overrideScore *float64) error {
	score := 0.0
	if overrideScore != nil {
		score = *overrideScore
	} else {
		metrics, err := e.pools.GetPoolMetrics(ctx, poolType)
		if err != nil {
			return err
		}
		score = metrics.AverageScore
	}
	if score >= e.cfg.PoolHealthCriticalPct {
		return nil
	}
	e.bus.Publish(domain.Event{
		Type: domain.EventHealthCheckNeeded, Timestamp: e.clock.Now(), Urgent: true,
		PoolType: poolType,
		Reason:   fmt.Sprintf("Pool %s health critical: average score %.0f", poolType, score),
	})
	return nil
}

// ExecuteRotation swaps domainID out of its active campaigns for a warmed
// replacement, transitioning the source to Recovery and then the replacement
// to Active. The two pool changes are not atomic: if the replacement's
// transition fails after the source has moved, the source is moved back to
// Active with a further TransitionDomain call (which records its own
// rotation event); if that rollback also fails it is only logged and the
// source stays in Recovery.
func (e *Engine) ExecuteRotation(ctx context.Context, domainID string) error {
	source, err := e.domains.Get(ctx, domainID)
	if err != nil {
		return err
	}

	replacement, err := e.findReplacementDomain(ctx, domainID)
	if err != nil {
		return err
	}
	if replacement == nil {
		reason := fmt.Sprintf("no replacement available for domain %s", source.Name)
		if e.notify != nil {
			_ = e.notify.NotifyFailedRotation(ctx, domainID, reason)
		}
		return &domain.ErrFatal{Reason: reason}
	}

	unlock := e.locks.lockBoth(source.ID, replacement.ID)
	defer unlock()

	campaignIDs := source.ActiveCampaignIDs()
	withErrors := false
	var failedCampaigns []string
	for _, cid := range campaignIDs {
		if err := e.campaigns.UpdateCampaignDomain(ctx, cid, source.ExternalProviderID, replacement.ExternalProviderID); err != nil {
			withErrors = true
			failedCampaigns = append(failedCampaigns, cid)
			e.log.WithFields(map[string]interface{}{
				"campaign_id": cid, "source": source.ID, "replacement": replacement.ID, "error": err.Error(),
			}).Error("campaign domain update failed during rotation")
		}
	}

	reason := "Rotated out due to low health"
	if withErrors {
		reason = fmt.Sprintf("Rotated out with errors on campaigns %v", failedCampaigns)
	}

	if err := e.pools.TransitionDomain(ctx, source.ID, domain.PoolRecovery, reason); err != nil {
		return fmt.Errorf("transition source to recovery: %w", err)
	}
	if err := e.pools.TransitionDomain(ctx, replacement.ID, domain.PoolActive, "Activated as rotation replacement"); err != nil {
		// best-effort compensation: put the source back so we don't strand it
		// in Recovery with no replacement actually active.
		if revertErr := e.pools.TransitionDomain(ctx, source.ID, domain.PoolActive, "rotation rollback"); revertErr != nil {
			e.log.WithFields(map[string]interface{}{"domain_id": source.ID, "error": revertErr.Error()}).
				Error("failed to roll back source domain after replacement transition failure")
		}
		return fmt.Errorf("transition replacement to active: %w", err)
	}
	return nil
}

// RefreshWarmup advances domainID's ramp-up step by one warmup-job tick
// (spec §4.11's warmup sweep) and pushes the new daily volume to the
// campaign platform's email account. Domains without RampUp enabled, or
// already at their steady-state DailyLimit, are a no-op.
func (e *Engine) RefreshWarmup(ctx context.Context, domainID string) error {
	unlock := e.locks.lockBoth(domainID, domainID)
	defer unlock()

	d, err := e.domains.Get(ctx, domainID)
	if err != nil {
		return err
	}
	if !d.Warmup.RampUp {
		return nil
	}
	now := e.clock.Now()
	if d.Warmup.WeekdaysOnly && isWeekend(now) {
		return nil
	}

	next := d.Warmup.DailyEmails + d.Warmup.RampUpValue
	if next > d.Sending.DailyLimit {
		next = d.Sending.DailyLimit
	}
	if next <= d.Warmup.DailyEmails {
		return nil // already ramped to steady state
	}

	updated, err := e.domains.UpdateConditional(ctx, domainID, func(cur *domain.Domain) error {
		cur.Warmup.DailyEmails = next
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist warmup ramp: %w", err)
	}

	if updated.ExternalProviderID != "" {
		if err := e.campaigns.UpdateEmailAccount(ctx, updated.ExternalProviderID, domain.EmailAccountUpdate{
			MessagePerDay: updated.Warmup.DailyEmails,
			Type:          "SMTP",
			WarmupDetails: map[string]interface{}{"reply_rate": updated.Warmup.ReplyRate},
		}); err != nil {
			return &domain.ErrTransient{Op: "UpdateEmailAccount", Err: err}
		}
	}

	e.bus.Publish(domain.Event{
		Type: domain.EventWarmupUpdate, DomainID: updated.ID, Timestamp: now,
		Reason: fmt.Sprintf("daily warmup volume now %d", updated.Warmup.DailyEmails),
	})
	return nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// findReplacementDomain returns the highest-scoring ReadyWaiting domain with
// HealthMetrics.AverageScore >= ReplacementMinScore, or nil if none qualify.
func (e *Engine) findReplacementDomain(ctx context.Context, excludeID string) (*domain.Domain, error) {
	candidates, err := e.domains.ListByPool(ctx, domain.PoolReadyWaiting)
	if err != nil {
		return nil, fmt.Errorf("list ready-waiting domains: %w", err)
	}
	var eligible []*domain.Domain
	for _, d := range candidates {
		if d.ID == excludeID {
			continue
		}
		if d.HealthMetrics.AverageScore >= float64(e.cfg.ReplacementMinScore) {
			eligible = append(eligible, d)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].HealthMetrics.AverageScore > eligible[j].HealthMetrics.AverageScore
	})
	return eligible[0], nil
}
