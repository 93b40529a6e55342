// Package presets defines per-(mailbox class, pool) default sending and
// warmup settings (spec §4.7) and validates settings before they are
// applied to a Domain or Pool.
package presets

import (
	"github.com/asaskevich/govalidator"
	"github.com/domainfleet/engine/internal/domain"
)

// Preset bundles the sending and warmup defaults for one
// (mailbox class, pool) pair.
type Preset struct {
	Sending domain.SendingSettings
	Warmup  domain.WarmupSettings
}

type presetKey struct {
	Class domain.MailboxClass
	Pool  domain.PoolType
}

// defaults implements the table of examples given in spec §4.7. Pools not
// listed for a mailbox class fall back to the class's Active preset, which
// mirrors how the source product treats "no special policy" pools.
var defaults = map[presetKey]Preset{
	{domain.MailboxStandardMS, domain.PoolInitialWarming}: standardMSWarming(),
	{domain.MailboxStandardMS, domain.PoolReadyWaiting}:   standardMSWarming(),
	{domain.MailboxStandardMS, domain.PoolRecovery}:       standardMSWarming(),
	{domain.MailboxStandardMS, domain.PoolActive}: {
		Sending: domain.SendingSettings{DailyLimit: 20, MinTimeGap: 15},
		Warmup:  domain.WarmupSettings{DailyEmails: 20, RampUp: false},
	},
	{domain.MailboxSpecialMS, domain.PoolActive}: {
		Sending: domain.SendingSettings{DailyLimit: 8, MinTimeGap: 60},
		Warmup:  domain.WarmupSettings{DailyEmails: 40},
	},
}

func standardMSWarming() Preset {
	return Preset{
		Sending: domain.SendingSettings{DailyLimit: 1, MinTimeGap: 600},
		Warmup: domain.WarmupSettings{
			DailyEmails:  40,
			RampUp:       true,
			RampUpValue:  3,
			Randomize:    domain.RandomizeRange{Min: 25, Max: 40},
			ReplyRate:    80,
			WeekdaysOnly: true,
		},
	}
}

// For looks up the preset for a (mailboxClass, pool) pair, falling back to
// the class's Active preset when no pool-specific entry exists.
func For(class domain.MailboxClass, pool domain.PoolType) (Preset, bool) {
	if p, ok := defaults[presetKey{class, pool}]; ok {
		return p, true
	}
	p, ok := defaults[presetKey{class, domain.PoolActive}]
	return p, ok
}

// ValidateSending enforces the sending-settings rules from spec §4.7:
// dailyLimit > 0, minTimeGap >= 15.
func ValidateSending(s domain.SendingSettings) error {
	if s.DailyLimit <= 0 {
		return &domain.ErrInvalidSettings{Reason: "dailyLimit must be > 0"}
	}
	if s.MinTimeGap < 15 {
		return &domain.ErrInvalidSettings{Reason: "minTimeGap must be >= 15"}
	}
	return nil
}

// ValidateWarmup enforces the warmup-settings rules from spec §4.7 and
// invariant 3: randomize.min < randomize.max, and when ramp-up is enabled
// its step must fall in [3, 40].
func ValidateWarmup(w domain.WarmupSettings) error {
	if w.Randomize.Max <= w.Randomize.Min {
		return &domain.ErrInvalidSettings{Reason: "randomize.max must be > randomize.min"}
	}
	if w.RampUp && (w.RampUpValue < 3 || w.RampUpValue > 40) {
		return &domain.ErrInvalidSettings{Reason: "rampUpValue must be in [3, 40] when rampUp is enabled"}
	}
	return nil
}

// ValidateDomainName enforces that a domain's external identifier is a
// plausible alphanumeric hostname fragment (dots and hyphens allowed) before it is sent to
// the placement provider.
func ValidateDomainName(name string) error {
	if name == "" {
		return &domain.ErrInvalidSettings{Reason: "domain name is required"}
	}
	stripped := stripDots(name)
	if !govalidator.IsAlphanumeric(stripped) {
		return &domain.ErrInvalidSettings{Reason: "domain name must be alphanumeric (dots and hyphens aside)"}
	}
	return nil
}

func stripDots(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '.' || r == '-' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
