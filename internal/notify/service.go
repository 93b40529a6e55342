// Package notify implements NotificationService (spec §4.10): it creates
// typed Notification rows and fans them out to the UI surface (always, via
// the NotificationRepository) and to email (critical level only, by
// default, via pkg/mailer). A failure on the email leg never fails the UI
// leg — the repository write is the operation's source of truth.
package notify

import (
	"context"
	"fmt"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/pkg/clock"
	"github.com/domainfleet/engine/pkg/logger"
	"github.com/domainfleet/engine/pkg/mailer"
)

// Config holds the thresholds and destination the service needs beyond what
// is already on the Notification record itself.
type Config struct {
	// LowScoreCriticalBelow is the score below which notifyLowDomainScore
	// escalates to critical instead of warning.
	LowScoreCriticalBelow int
	// PoolWarningBelow is the available-domain count below which
	// notifyPoolStatus warns; zero available is always critical.
	PoolWarningBelow int
	// AlertRecipient receives every email-channel notification.
	AlertRecipient string
}

// DefaultConfig matches spec §4.10's named thresholds.
func DefaultConfig() Config {
	return Config{
		LowScoreCriticalBelow: 60,
		PoolWarningBelow:      3,
	}
}

// Service implements NotificationService and satisfies the narrow
// automation.NotificationPublisher interface.
type Service struct {
	repo   domain.NotificationRepository
	mailer mailer.Mailer
	clock  clock.Clock
	log    logger.Logger
	cfg    Config
}

func NewService(repo domain.NotificationRepository, m mailer.Mailer, c clock.Clock, log logger.Logger, cfg Config) *Service {
	return &Service{repo: repo, mailer: m, clock: c, log: log, cfg: cfg}
}

// notify creates n, always persisting it for UI consumption, and sends an
// email only when n.Level is critical (DeliverEmail is derived here rather
// than left to callers, keeping the critical-only-by-default policy in one
// place).
func (s *Service) notify(ctx context.Context, level domain.NotificationLevel, text, domainID string) error {
	n := &domain.Notification{
		Level:        level,
		Text:         text,
		DomainID:     domainID,
		DeliverUI:    true,
		DeliverEmail: level == domain.NotificationCritical,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if n.DeliverEmail && s.cfg.AlertRecipient != "" {
		if err := s.mailer.SendNotification(s.cfg.AlertRecipient, string(level), text, text); err != nil {
			s.log.WithField("domain_id", domainID).WithField("error", err.Error()).
				Warn("notification email delivery failed, UI notification already persisted")
		}
	}
	return nil
}

// NotifyLowDomainScore is critical below LowScoreCriticalBelow, warning
// otherwise.
func (s *Service) NotifyLowDomainScore(ctx context.Context, domainID string, score int) error {
	level := domain.NotificationWarning
	if score < s.cfg.LowScoreCriticalBelow {
		level = domain.NotificationCritical
	}
	text := fmt.Sprintf("Domain %s health score dropped to %d", domainID, score)
	return s.notify(ctx, level, text, domainID)
}

// NotifyFailedRotation is always critical: it means a domain could not be
// rotated out and is still sending in a degraded state. Its signature
// matches automation.NotificationPublisher so the Engine can depend on this
// package without an import cycle.
func (s *Service) NotifyFailedRotation(ctx context.Context, domainID, reason string) error {
	text := fmt.Sprintf("Rotation failed for domain %s: %s", domainID, reason)
	return s.notify(ctx, domain.NotificationCritical, text, domainID)
}

// NotifyPoolStatus reports a pool's available-member count: critical when
// zero are available, warning below PoolWarningBelow, silent otherwise (a
// healthy pool is not worth a notification).
func (s *Service) NotifyPoolStatus(ctx context.Context, poolType domain.PoolType, available int) error {
	switch {
	case available == 0:
		text := fmt.Sprintf("Pool %s has zero available domains", poolType)
		return s.notify(ctx, domain.NotificationCritical, text, "")
	case available < s.cfg.PoolWarningBelow:
		text := fmt.Sprintf("Pool %s has only %d available domains", poolType, available)
		return s.notify(ctx, domain.NotificationWarning, text, "")
	default:
		return nil
	}
}

// NotifyTestCompleted is informational: it never escalates past info, so it
// is always UI-only under the critical-only email policy.
func (s *Service) NotifyTestCompleted(ctx context.Context, domainID string, success bool, details string) error {
	status := "succeeded"
	if !success {
		status = "did not complete"
	}
	text := fmt.Sprintf("Placement test for domain %s %s", domainID, status)
	if details != "" {
		text = fmt.Sprintf("%s: %s", text, details)
	}
	return s.notify(ctx, domain.NotificationInfo, text, domainID)
}
