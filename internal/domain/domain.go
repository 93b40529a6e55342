// Package domain holds the plain data model for the fleet automation engine:
// Domain, Pool, PlacementTest, Job, JobLogEntry, and Notification records,
// plus the repository and gateway contracts that operate on them. Records
// carry no behavior of their own (see DESIGN.md on instance-method models);
// behavior lives in the rules, pool, and automation packages.
package domain

import "time"

// PoolType enumerates the four lifecycle pools a Domain can belong to.
type PoolType string

const (
	PoolInitialWarming PoolType = "initial_warming"
	PoolReadyWaiting   PoolType = "ready_waiting"
	PoolActive         PoolType = "active"
	PoolRecovery       PoolType = "recovery"
)

// IsValid reports whether p is one of the four defined pool types.
func (p PoolType) IsValid() bool {
	switch p {
	case PoolInitialWarming, PoolReadyWaiting, PoolActive, PoolRecovery:
		return true
	default:
		return false
	}
}

// MailboxClass selects which Preset settings apply to a Domain.
type MailboxClass string

const (
	MailboxStandardMS MailboxClass = "standard_ms"
	MailboxSpecialMS  MailboxClass = "special_ms"
	MailboxCustom     MailboxClass = "custom"
)

// CampaignStatus mirrors the campaign-platform statuses from spec §6.
type CampaignStatus string

const (
	CampaignDrafted  CampaignStatus = "DRAFTED"
	CampaignActive   CampaignStatus = "ACTIVE"
	CampaignComplete CampaignStatus = "COMPLETED"
	CampaignStopped  CampaignStatus = "STOPPED"
	CampaignPaused   CampaignStatus = "PAUSED"
)

// SendingSettings is the per-domain sending policy (spec §3, §4.7).
type SendingSettings struct {
	DailyLimit  int
	MinTimeGap  int // seconds
}

// RandomizeRange bounds warmup send-time jitter; Min must be <= Max
// (invariant 3).
type RandomizeRange struct {
	Min int
	Max int
}

// WarmupSettings is the per-domain warmup ramp policy (spec §3, §4.7).
type WarmupSettings struct {
	DailyEmails  int
	RampUp       bool
	RampUpValue  int
	Randomize    RandomizeRange
	ReplyRate    int
	WeekdaysOnly bool
}

// TestRecord is one provider-reported test-email outcome within a
// PlacementTest (spec §6).
type TestRecord struct {
	Email    string
	Provider string // "Google" or "Microsoft"
	Folder   string // "inbox", "spam", "other", or "" if unknown
	Status   string
}

// TestHistoryEntry is a bounded (<=10, invariant 2) record of a completed
// placement test kept on the Domain for health-score computation.
type TestHistoryEntry struct {
	TestID      string
	CompletedAt time.Time
	Score       int
	Inbox       int
	Spam        int
}

// RotationEvent is an immutable audit entry appended whenever a Domain
// changes pool (invariant 5).
type RotationEvent struct {
	At          time.Time
	FromPool    PoolType
	ToPool      PoolType
	Action      string // "rotated_out", as written by PoolManager.TransitionDomain
	Reason      string
	CampaignIDs []string
	WithErrors  bool
}

// CampaignRef is a Domain's association to a campaign on the external
// campaign platform.
type CampaignRef struct {
	CampaignID string
	Status     CampaignStatus
}

// TestSchedule tracks when a Domain's next placement test is due.
type TestSchedule struct {
	NextTest time.Time
}

// HealthMetrics is the rolling summary derived from recent test scores.
type HealthMetrics struct {
	AverageScore float64
	SampleSize   int
	UpdatedAt    time.Time
}

// Domain is a sending identity moving through the pool lifecycle (spec §3).
type Domain struct {
	ID                  string
	Name                string
	TenantID            string
	ExternalProviderID  string
	Pool                PoolType
	MailboxClass        MailboxClass
	Sending             SendingSettings
	Warmup              WarmupSettings
	HealthScore         int
	ConsecutiveLowScores int
	PoolEntryDate       time.Time
	TestSchedule        TestSchedule
	HealthMetrics       HealthMetrics
	TestHistory         []TestHistoryEntry
	RotationLog         []RotationEvent
	Campaigns           []CampaignRef
	ActiveTestID        string // non-empty while a placement test is outstanding (invariant 4)
	Deactivated         bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasActiveCampaign reports whether the domain has at least one campaign in
// ACTIVE status, used by TransitionRules' ReadyWaiting->Active edge.
func (d *Domain) HasActiveCampaign() bool {
	for _, c := range d.Campaigns {
		if c.Status == CampaignActive {
			return true
		}
	}
	return false
}

// ActiveCampaignIDs returns the ids of every ACTIVE campaign on the domain.
func (d *Domain) ActiveCampaignIDs() []string {
	var ids []string
	for _, c := range d.Campaigns {
		if c.Status == CampaignActive {
			ids = append(ids, c.CampaignID)
		}
	}
	return ids
}

// LastNScores returns up to n most recent test scores, most-recent-last,
// matching the ordering TestHistory is kept in (invariant 2).
func (d *Domain) LastNScores(n int) []int {
	if n <= 0 || len(d.TestHistory) == 0 {
		return nil
	}
	start := len(d.TestHistory) - n
	if start < 0 {
		start = 0
	}
	scores := make([]int, 0, len(d.TestHistory)-start)
	for _, e := range d.TestHistory[start:] {
		scores = append(scores, e.Score)
	}
	return scores
}

// DaysInPool returns the number of whole days since the domain entered its
// current pool, as of now.
func (d *Domain) DaysInPool(now time.Time) int {
	if d.PoolEntryDate.IsZero() {
		return 0
	}
	return int(now.Sub(d.PoolEntryDate).Hours() / 24)
}

// PoolAutomationRules configures cadence and thresholds for one pool type
// (spec §3 Pool.automationRules).
type PoolAutomationRules struct {
	TestCadence            time.Duration
	ScoreThreshold         int
	MinTestsForGraduation  int
	RecoveryPeriodDays     int
	NotificationThresholds map[string]int
}

// Pool is the lifecycle bucket a Domain belongs to (spec §3). Exactly one
// Pool row exists per PoolType.
type Pool struct {
	Type            PoolType
	Sending         SendingSettings
	Warmup          WarmupSettings
	AutomationRules PoolAutomationRules
	MemberIDs       []string
	UpdatedAt       time.Time
}

// PlacementTestStatus mirrors the provider's lifecycle for a test (spec §6).
type PlacementTestStatus string

const (
	TestCreated           PlacementTestStatus = "created"
	TestWaitingForEmail   PlacementTestStatus = "waiting_for_email"
	TestReceived          PlacementTestStatus = "received"
	TestNotReceived       PlacementTestStatus = "not_received"
	TestCompleted         PlacementTestStatus = "completed"
)

// PlacementTest is one probe of a domain's inbox placement (spec §3).
type PlacementTest struct {
	ID           string
	DomainID     string
	CreatedAt    time.Time
	CompletedAt  *time.Time
	Status       PlacementTestStatus
	TestEmails   []TestRecord
	OverallScore int
	Inbox        int
	Spam         int
}

// JobType enumerates the four job categories, each with its own queue,
// concurrency cap, and retry backoff (spec §4.4).
type JobType string

const (
	JobHealth   JobType = "health"
	JobTest     JobType = "test"
	JobWarmup   JobType = "warmup"
	JobRotation JobType = "rotation"
)

// JobPriority is 1 (highest) through 3 (lowest), per spec §3.
type JobPriority int

const (
	PriorityHigh   JobPriority = 1
	PriorityMedium JobPriority = 2
	PriorityLow    JobPriority = 3
)

// JobPayload is a sealed union of typed per-job-type payloads (§9 redesign:
// prefer a tagged union over an untyped bag). Exactly one field is set,
// matching Job.Type.
type JobPayload struct {
	Test     *TestJobPayload
	Health   *HealthJobPayload
	Warmup   *WarmupJobPayload
	Rotation *RotationJobPayload
}

// TestJobPayload drives AutomationEngine.ExecuteTest.
type TestJobPayload struct {
	DomainID string
}

// HealthJobPayload drives AutomationEngine.MonitorDomainHealth.
type HealthJobPayload struct {
	DomainID string
}

// WarmupJobPayload drives a warmup-settings refresh sweep for one domain.
type WarmupJobPayload struct {
	DomainID string
}

// RotationJobPayload drives AutomationEngine.ExecuteRotation.
type RotationJobPayload struct {
	DomainID string
}

// Job is a unit of deferred work (spec §3).
type Job struct {
	ID          string
	Type        JobType
	DomainID    string // or pool id for sweep jobs
	Priority    JobPriority
	Attempt     int
	NotBefore   time.Time
	Payload     JobPayload
	EnqueuedAt  time.Time
}

// JobLogStatus is the outcome of one job attempt (spec §3).
type JobLogStatus string

const (
	JobLogSuccess JobLogStatus = "success"
	JobLogFailed  JobLogStatus = "failed"
	JobLogRetry   JobLogStatus = "retry"
)

// JobLogEntry is an audit record for one job attempt (spec §3). It is kept
// until JobLogRepository.PurgeOlderThan removes it.
type JobLogEntry struct {
	ID        string
	JobID     string
	Type      JobType
	Status    JobLogStatus
	Duration  time.Duration
	Error     string
	Timestamp time.Time
}

// NotificationLevel classifies how urgently a Notification should be
// surfaced (spec §3).
type NotificationLevel string

const (
	NotificationCritical NotificationLevel = "critical"
	NotificationWarning  NotificationLevel = "warning"
	NotificationInfo     NotificationLevel = "info"
)

// Notification is a typed, human-facing message (spec §3).
type Notification struct {
	ID            string
	Level         NotificationLevel
	Text          string
	DomainID      string // optional
	DeliverUI     bool
	DeliverEmail  bool
	Read          bool
	CreatedAt     time.Time
}
