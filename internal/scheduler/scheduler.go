// Package scheduler implements Scheduler/Cron (spec §4.11): four recurring
// sweeps, of which the health and warmup sweeps enqueue per-domain jobs and
// the test-scheduling and rotation sweeps call the engine directly, driven
// by github.com/robfig/cron/v3 the way the mailgrid example drives its
// dispatch loop off cron expressions.
package scheduler

import (
	"context"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/pkg/logger"
	"github.com/robfig/cron/v3"
)

// JobEnqueuer is the subset of queue.JobQueue the scheduler depends on.
type JobEnqueuer interface {
	Enqueue(job *domain.Job)
}

// Engine is the subset of automation.Engine the scheduler drives directly,
// for sweeps that are bookkeeping rather than a single job's work.
type Engine interface {
	ScheduleNextTest(ctx context.Context, d *domain.Domain) error
	CheckPoolHealth(ctx context.Context, poolType domain.PoolType, overrideScore *float64) error
}

var allPools = []domain.PoolType{
	domain.PoolInitialWarming, domain.PoolReadyWaiting, domain.PoolActive, domain.PoolRecovery,
}

// Scheduler owns the cron.Cron instance and the four sweep functions.
type Scheduler struct {
	domains domain.DomainRepository
	queue   JobEnqueuer
	engine  Engine
	log     logger.Logger
	cron    *cron.Cron
}

// New builds a Scheduler with its four sweeps registered but not yet
// running; call Start to begin the cron loop.
func New(domains domain.DomainRepository, queue JobEnqueuer, engine Engine, log logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		domains: domains,
		queue:   queue,
		engine:  engine,
		log:     log,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}

	entries := []struct {
		expr string
		fn   func()
	}{
		{"0 */6 * * *", s.runHealthSweep},
		{"0 0 * * *", s.runTestScheduleSweep},
		{"0 6 * * *", s.runWarmupSweep},
		{"0 */12 * * *", s.runRotationSweep},
	}
	for _, e := range entries {
		if _, err := s.cron.AddFunc(e.expr, e.fn); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start begins the cron dispatch loop in a background goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron loop and waits for any sweep in progress to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) runHealthSweep() {
	ctx := context.Background()
	for _, pt := range allPools {
		members, err := s.domains.ListByPool(ctx, pt)
		if err != nil {
			s.log.WithField("pool", string(pt)).WithField("error", err.Error()).Error("health sweep: list pool failed")
			continue
		}
		for _, d := range members {
			if d.Deactivated {
				continue
			}
			s.queue.Enqueue(&domain.Job{
				Type: domain.JobHealth, DomainID: d.ID, Priority: domain.PriorityMedium,
				Payload: domain.JobPayload{Health: &domain.HealthJobPayload{DomainID: d.ID}},
			})
		}
	}
}

func (s *Scheduler) runTestScheduleSweep() {
	ctx := context.Background()
	due, err := s.domains.ListDueForTest(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithField("error", err.Error()).Error("test-schedule sweep: list due domains failed")
		return
	}
	for _, d := range due {
		if err := s.engine.ScheduleNextTest(ctx, d); err != nil {
			s.log.WithField("domain_id", d.ID).WithField("error", err.Error()).Error("test-schedule sweep: schedule failed")
		}
	}
}

func (s *Scheduler) runWarmupSweep() {
	ctx := context.Background()
	for _, pt := range allPools {
		members, err := s.domains.ListByPool(ctx, pt)
		if err != nil {
			s.log.WithField("pool", string(pt)).WithField("error", err.Error()).Error("warmup sweep: list pool failed")
			continue
		}
		for _, d := range members {
			if d.Deactivated || !d.Warmup.RampUp {
				continue
			}
			s.queue.Enqueue(&domain.Job{
				Type: domain.JobWarmup, DomainID: d.ID, Priority: domain.PriorityLow,
				Payload: domain.JobPayload{Warmup: &domain.WarmupJobPayload{DomainID: d.ID}},
			})
		}
	}
}

func (s *Scheduler) runRotationSweep() {
	ctx := context.Background()
	for _, pt := range allPools {
		if err := s.engine.CheckPoolHealth(ctx, pt, nil); err != nil {
			s.log.WithField("pool", string(pt)).WithField("error", err.Error()).Error("rotation sweep: pool health check failed")
		}
	}
}
