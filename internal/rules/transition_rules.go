// Package rules implements the pure, side-effect-free TransitionRules
// predicate from spec §4.6: given a domain snapshot, decide whether and
// where it should move in the pool lifecycle. Nothing here touches the
// repository, provider, or clock directly — callers pass in whatever "now"
// and config they want, which keeps the function trivially deterministic
// and testable (spec §8's round-trip law: calling it twice on the same
// snapshot returns identical results).
package rules

import (
	"time"

	"github.com/domainfleet/engine/internal/domain"
)

// Config holds the thresholds named in spec §6 that parameterize every rule.
type Config struct {
	MinScore              int // MIN_SCORE, default 75
	MinTests              int // MIN_TESTS, default 3
	GraduationDays        int // GRADUATION_DAYS, default 21
	RecoveryDays          int // RECOVERY_DAYS, default 21
	MaxConsecutiveLow     int // MAX_CONSEC_LOW, default 2
}

// DefaultConfig returns the thresholds named in spec §6.
func DefaultConfig() Config {
	return Config{
		MinScore:          75,
		MinTests:          3,
		GraduationDays:    21,
		RecoveryDays:      21,
		MaxConsecutiveLow: 2,
	}
}

// Decision is the output of Evaluate: whether a transition should occur,
// where to, and why (or why not).
type Decision struct {
	ShouldTransition bool
	TargetPool       domain.PoolType
	Reason           string
}

// Evaluate applies the authoritative rules from spec §4.6 to a domain
// snapshot as of now. hasActiveCampaign must reflect the domain's current
// campaign state, since TransitionRules takes no repository dependency.
func Evaluate(d *domain.Domain, hasActiveCampaign bool, cfg Config, now time.Time) Decision {
	switch d.Pool {
	case domain.PoolInitialWarming:
		return evaluateInitialWarming(d, cfg, now)
	case domain.PoolReadyWaiting:
		return evaluateReadyWaiting(d, hasActiveCampaign, cfg)
	case domain.PoolActive:
		return evaluateActive(d, cfg)
	case domain.PoolRecovery:
		return evaluateRecovery(d, cfg, now)
	default:
		return Decision{ShouldTransition: false, Reason: "unknown pool type"}
	}
}

func evaluateInitialWarming(d *domain.Domain, cfg Config, now time.Time) Decision {
	days := d.DaysInPool(now)
	if days < cfg.GraduationDays {
		return Decision{Reason: "insufficient time in pool"}
	}
	scores := d.LastNScores(3)
	if len(scores) < cfg.MinTests {
		return Decision{Reason: "insufficient test count"}
	}
	if mean(scores) < float64(cfg.MinScore) {
		return Decision{Reason: "average score below threshold"}
	}
	return Decision{
		ShouldTransition: true,
		TargetPool:       domain.PoolReadyWaiting,
		Reason:           "Graduated: met graduation criteria from Initial Warming",
	}
}

func evaluateReadyWaiting(d *domain.Domain, hasActiveCampaign bool, cfg Config) Decision {
	scores := d.LastNScores(3)
	if len(scores) < cfg.MinTests {
		return Decision{Reason: "insufficient test count"}
	}
	if mean(scores) < float64(cfg.MinScore) {
		return Decision{Reason: "average score below threshold"}
	}
	if !hasActiveCampaign {
		return Decision{Reason: "no active campaign"}
	}
	return Decision{
		ShouldTransition: true,
		TargetPool:       domain.PoolActive,
		Reason:           "Met activation criteria from Ready Waiting",
	}
}

func evaluateActive(d *domain.Domain, cfg Config) Decision {
	if d.ConsecutiveLowScores < cfg.MaxConsecutiveLow {
		return Decision{Reason: "consecutive low scores below threshold"}
	}
	return Decision{
		ShouldTransition: true,
		TargetPool:       domain.PoolRecovery,
		Reason:           "Consecutive low scores triggered recovery",
	}
}

func evaluateRecovery(d *domain.Domain, cfg Config, now time.Time) Decision {
	days := d.DaysInPool(now)
	if days < cfg.RecoveryDays {
		return Decision{Reason: "insufficient time in pool"}
	}
	scores := d.LastNScores(3)
	if len(scores) < cfg.MinTests {
		return Decision{Reason: "insufficient test count"}
	}
	for _, s := range scores {
		if s < cfg.MinScore {
			return Decision{Reason: "not every recent score meets threshold"}
		}
	}
	return Decision{
		ShouldTransition: true,
		TargetPool:       domain.PoolReadyWaiting,
		Reason:           "Recovered to Ready Waiting",
	}
}

func mean(scores []int) float64 {
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return float64(sum) / float64(len(scores))
}

// RoundedHealthScore computes invariant 8: the integer mean of the last
// <=3 test scores, rounded to the nearest integer (ties round up).
func RoundedHealthScore(d *domain.Domain) int {
	scores := d.LastNScores(3)
	if len(scores) == 0 {
		return 0
	}
	m := mean(scores)
	return int(m + 0.5)
}
