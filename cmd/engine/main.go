// Command engine is the reference host process for the domain fleet
// automation engine: it wires config, repositories, providers, the pool
// manager, the automation engine, the notification service, the job queue,
// and the scheduler together, then runs until an interrupt signal arrives.
// The engine itself is a library (spec §6 names no CLI or wire format); this
// binary is one way to embed it.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/domainfleet/engine/config"
	"github.com/domainfleet/engine/internal/automation"
	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/internal/notify"
	"github.com/domainfleet/engine/internal/pool"
	"github.com/domainfleet/engine/internal/provider"
	"github.com/domainfleet/engine/internal/queue"
	"github.com/domainfleet/engine/internal/repository"
	"github.com/domainfleet/engine/internal/rules"
	"github.com/domainfleet/engine/internal/scheduler"
	"github.com/domainfleet/engine/pkg/clock"
	"github.com/domainfleet/engine/pkg/logger"
	"github.com/domainfleet/engine/pkg/mailer"
	"github.com/domainfleet/engine/pkg/ratelimiter"
)

// osExit is a variable so tests can intercept process termination.
var osExit = os.Exit

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		osExit(1)
		return
	}

	appLogger := logger.NewLeveledLogger(cfg.LogLevel)
	appLogger.Info("starting domain fleet automation engine")

	db, err := sql.Open("postgres", systemDSN(&cfg.Database))
	if err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to open database connection")
		osExit(1)
		return
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to ping database")
		osExit(1)
		return
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	c := clock.NewRealClock()

	domains := repository.NewPostgresDomainRepository(db)
	pools := repository.NewPostgresPoolRepository(db)
	tests := repository.NewPostgresTestRepository(db)
	jobLogs := repository.NewPostgresJobLogRepository(db)
	notifications := repository.NewPostgresNotificationRepository(db)

	// The placement-test provider and campaign platform are abstract
	// external collaborators (spec §1, §6); no real vendor client ships
	// here (see DESIGN.md), so the host wires the deterministic fakes.
	placement := provider.NewFakePlacementProvider()
	campaigns := provider.NewFakeCampaignPlatform()

	limiter := ratelimiter.New(ratelimiter.Config{
		PerDomainLimit:  cfg.Rate.PerDomainPerMinute,
		PerDomainWindow: time.Minute,
		GlobalLimit:     cfg.Rate.GlobalPerMinute,
		GlobalWindow:    time.Minute,
	}, c)

	bus := domain.NewInMemoryEventBus(func(t domain.EventType, r interface{}) {
		appLogger.WithField("event_type", string(t)).WithField("panic", r).Error("event handler panicked")
	})

	rcfg := rules.Config{
		MinScore:          cfg.Rules.MinScore,
		MinTests:          cfg.Rules.MinTests,
		GraduationDays:    cfg.Rules.GraduationDays,
		RecoveryDays:      cfg.Rules.RecoveryDays,
		MaxConsecutiveLow: cfg.Rules.MaxConsecLow,
	}

	poolCfg := pool.DefaultConfig()
	poolCfg.MinHealthScore = cfg.Rules.MinScore
	poolMgr := pool.NewManager(domains, pools, limiter, bus, c, poolCfg, rcfg)

	var m mailer.Mailer
	if cfg.SMTP.Host != "" {
		m = mailer.NewSMTPMailer(&mailer.Config{
			SMTPHost:     cfg.SMTP.Host,
			SMTPPort:     cfg.SMTP.Port,
			SMTPUsername: cfg.SMTP.Username,
			SMTPPassword: cfg.SMTP.Password,
			FromEmail:    cfg.SMTP.FromEmail,
			FromName:     cfg.SMTP.FromName,
		})
	} else {
		m = mailer.NewConsoleMailer()
	}
	notifyCfg := notify.DefaultConfig()
	notifyCfg.LowScoreCriticalBelow = int(cfg.Health.Critical)
	notifyCfg.AlertRecipient = cfg.AlertRecipient
	notifySvc := notify.NewService(notifications, m, c, appLogger, notifyCfg)

	queueCfg := queue.DefaultConfig()
	queueCfg.MaxRetries = cfg.Retry.MaxRetries
	if t, ok := queueCfg.Types[domain.JobHealth]; ok {
		t.RetryDelay = cfg.Retry.HealthDelay
		queueCfg.Types[domain.JobHealth] = t
	}
	if t, ok := queueCfg.Types[domain.JobTest]; ok {
		t.RetryDelay = cfg.Retry.TestDelay
		queueCfg.Types[domain.JobTest] = t
	}
	if t, ok := queueCfg.Types[domain.JobWarmup]; ok {
		t.RetryDelay = cfg.Retry.WarmupDelay
		queueCfg.Types[domain.JobWarmup] = t
	}
	if t, ok := queueCfg.Types[domain.JobRotation]; ok {
		t.RetryDelay = cfg.Retry.RotationDelay
		queueCfg.Types[domain.JobRotation] = t
	}

	engineCfg := automation.DefaultConfig()
	engineCfg.HealthCriticalAvg = cfg.Health.Critical
	engineCfg.PoolHealthCriticalPct = cfg.Health.PoolCritical

	// JobQueue and Engine depend on each other (the queue dispatches into
	// engine methods; the engine enqueues follow-up jobs), so the queue is
	// constructed with handlers that close over a pointer to the engine
	// set immediately afterward.
	var engine *automation.Engine
	handlers := map[domain.JobType]queue.Handler{
		domain.JobHealth: func(ctx context.Context, job *domain.Job) error {
			return engine.MonitorDomainHealth(ctx, job.DomainID)
		},
		domain.JobTest: func(ctx context.Context, job *domain.Job) error {
			return engine.ExecuteTest(ctx, job.DomainID)
		},
		domain.JobWarmup: func(ctx context.Context, job *domain.Job) error {
			return engine.RefreshWarmup(ctx, job.DomainID)
		},
		domain.JobRotation: func(ctx context.Context, job *domain.Job) error {
			return engine.ExecuteRotation(ctx, job.DomainID)
		},
	}
	onGiveUp := func(job *domain.Job, lastErr error) {
		appLogger.WithField("job_type", string(job.Type)).WithField("domain_id", job.DomainID).
			WithField("error", lastErr.Error()).Error("job exhausted retries")
		reason := fmt.Sprintf("job %s for domain %s exhausted retries: %v", job.Type, job.DomainID, lastErr)
		if err := notifySvc.NotifyFailedRotation(context.Background(), job.DomainID, reason); err != nil {
			appLogger.WithField("error", err.Error()).Error("failed to publish retry-exhaustion notification")
		}
	}
	jobQueue := queue.New(queueCfg, c, appLogger, limiter, jobLogs, handlers, onGiveUp)

	engine = automation.NewEngine(domains, tests, placement, campaigns, poolMgr, bus, jobQueue, notifySvc, c, appLogger, engineCfg, rcfg)

	sched, err := scheduler.New(domains, jobQueue, engine, appLogger)
	if err != nil {
		appLogger.WithField("error", err.Error()).Fatal("failed to build scheduler")
		osExit(1)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	jobQueue.Start(ctx)
	sched.Start()
	appLogger.Info("engine running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLogger.Info("shutdown signal received, draining in-flight work")
	sched.Stop()
	cancel()
	jobQueue.Stop()
	appLogger.Info("engine stopped")
}

func systemDSN(cfg *config.DatabaseConfig) string {
	if cfg.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Name, cfg.SSLMode)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}
