package ratelimiter

import (
	"testing"
	"time"

	"github.com/domainfleet/engine/pkg/clock"
	"github.com/stretchr/testify/assert"
)

func TestTryAcquire_PerDomainLimit(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	rl := New(Config{
		PerDomainLimit: 1, PerDomainWindow: time.Minute,
		GlobalLimit: 100, GlobalWindow: time.Minute,
	}, vc)

	assert.True(t, rl.TryAcquire("d1"))
	assert.False(t, rl.TryAcquire("d1"), "second call within the window must be denied")

	vc.Advance(time.Minute)
	assert.True(t, rl.TryAcquire("d1"), "call after the window resets must succeed")
}

func TestTryAcquire_GlobalLimitAppliesAcrossDomains(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	rl := New(Config{
		PerDomainLimit: 30, PerDomainWindow: time.Minute,
		GlobalLimit: 1, GlobalWindow: time.Minute,
	}, vc)

	assert.True(t, rl.TryAcquire("d1"))
	assert.False(t, rl.TryAcquire("d2"), "global window is shared across domains")
}

func TestTryAcquire_DoesNotConsumeOnDenial(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	rl := New(Config{
		PerDomainLimit: 1, PerDomainWindow: time.Minute,
		GlobalLimit: 1, GlobalWindow: time.Minute,
	}, vc)

	assert.True(t, rl.TryAcquire("d1"))
	assert.False(t, rl.TryAcquire("d1"))
	assert.False(t, rl.TryAcquire("d1"))
}

func TestRemainingWindow(t *testing.T) {
	vc := clock.NewVirtualClock(time.Unix(0, 0))
	rl := New(DefaultConfig(), vc)

	assert.Equal(t, time.Minute, rl.RemainingWindow("d1"), "an unseen domain starts a fresh window")
	rl.TryAcquire("d1")
	vc.Advance(10 * time.Second)
	assert.Equal(t, 50*time.Second, rl.RemainingWindow("d1"))
}
