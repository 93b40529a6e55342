// Package ratelimiter implements the fixed-window limiter described in
// spec §4.1: a per-domain counter and a global counter, each resetting
// lazily the first time a call lands past its window boundary. It never
// blocks the caller; TryAcquire returns immediately with true or false so
// that denial can be turned into a job-queue deferral rather than a spin.
package ratelimiter

import (
	"sync"
	"time"

	"github.com/domainfleet/engine/pkg/clock"
)

// Config holds the two window policies from spec §6: RATE_PER_DOMAIN and
// RATE_GLOBAL.
type Config struct {
	PerDomainLimit  int
	PerDomainWindow time.Duration
	GlobalLimit     int
	GlobalWindow    time.Duration
}

// DefaultConfig returns the defaults named in spec §6: 30/min per domain,
// 100/min globally.
func DefaultConfig() Config {
	return Config{
		PerDomainLimit:  30,
		PerDomainWindow: time.Minute,
		GlobalLimit:     100,
		GlobalWindow:    time.Minute,
	}
}

type window struct {
	start time.Time
	count int
}

// RateLimiter is the process-global, in-memory limiter from spec §4.1 and
// §5. Losing its state on restart only defers work, never violates
// correctness, so no persistence is attempted.
type RateLimiter struct {
	cfg   Config
	clock clock.Clock

	mu     sync.Mutex
	global window
	domain map[string]*window
}

// New creates a RateLimiter driven by the given clock (use clock.NewRealClock
// in production, a clock.VirtualClock in tests).
func New(cfg Config, c clock.Clock) *RateLimiter {
	return &RateLimiter{
		cfg:    cfg,
		clock:  c,
		domain: make(map[string]*window),
	}
}

// TryAcquire reports whether a call for domainID is allowed right now. It
// consumes one slot from both the per-domain and the global window when it
// allows the call; a denial consumes nothing.
func (r *RateLimiter) TryAcquire(domainID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	resetIfExpired(&r.global, now, r.cfg.GlobalWindow)
	dw := r.domainWindow(domainID)
	resetIfExpired(dw, now, r.cfg.PerDomainWindow)

	if r.global.count >= r.cfg.GlobalLimit || dw.count >= r.cfg.PerDomainLimit {
		return false
	}

	r.global.count++
	dw.count++
	return true
}

// RemainingWindow returns how long until the per-domain window next resets,
// used by callers that want to know when to retry after a denial.
func (r *RateLimiter) RemainingWindow(domainID string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	dw := r.domainWindow(domainID)
	resetIfExpired(dw, now, r.cfg.PerDomainWindow)

	elapsed := now.Sub(dw.start)
	remaining := r.cfg.PerDomainWindow - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *RateLimiter) domainWindow(domainID string) *window {
	w, ok := r.domain[domainID]
	if !ok {
		w = &window{}
		r.domain[domainID] = w
	}
	return w
}

func resetIfExpired(w *window, now time.Time, length time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
}
