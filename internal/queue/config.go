package queue

import (
	"time"

	"github.com/domainfleet/engine/internal/domain"
)

// TypeConfig holds the per-job-type knobs from spec §4.4: concurrency cap,
// retry backoff, and execution deadline (spec §5).
type TypeConfig struct {
	Concurrency int
	RetryDelay  time.Duration
	Deadline    time.Duration
}

// Config is the full per-type configuration table. MaxRetries applies
// across all types (spec §6).
type Config struct {
	MaxRetries int
	Types      map[domain.JobType]TypeConfig
}

// DefaultConfig returns the defaults from spec §4.4 and §5:
// health=5 workers/immediate retry/30s deadline,
// test=3 workers/15min retry/5min deadline,
// warmup=2 workers/1hr retry/5min deadline,
// rotation=1 worker (globally exclusive)/5min retry/5min deadline.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Types: map[domain.JobType]TypeConfig{
			domain.JobHealth: {
				Concurrency: 5,
				RetryDelay:  0,
				Deadline:    30 * time.Second,
			},
			domain.JobTest: {
				Concurrency: 3,
				RetryDelay:  15 * time.Minute,
				Deadline:    5 * time.Minute,
			},
			domain.JobWarmup: {
				Concurrency: 2,
				RetryDelay:  time.Hour,
				Deadline:    5 * time.Minute,
			},
			domain.JobRotation: {
				Concurrency: 1,
				RetryDelay:  5 * time.Minute,
				Deadline:    5 * time.Minute,
			},
		},
	}
}
