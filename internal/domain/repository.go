package domain

import (
	"context"
	"time"
)

// DomainRepository is the typed find/update/upsert surface over Domain rows
// (spec §4.2). All mutating operations return *ErrNotFound when the target
// id does not exist; the caller treats that as non-retryable.
type DomainRepository interface {
	Get(ctx context.Context, id string) (*Domain, error)
	Upsert(ctx context.Context, d *Domain) error

	// UpdateConditional reads the current snapshot, applies fn, and persists
	// the result as one serialized read-modify-write: the in-memory
	// implementation holds its mutex and the Postgres one a row lock
	// (SELECT ... FOR UPDATE) throughout, so no *ErrConflict is returned.
	UpdateConditional(ctx context.Context, id string, fn func(d *Domain) error) (*Domain, error)

	// AppendRotationEvent atomically records ev and updates Pool/PoolEntryDate
	// in the same operation (invariant 5, 7).
	AppendRotationEvent(ctx context.Context, id string, toPool PoolType, ev RotationEvent) (*Domain, error)

	// ListByPool returns every domain whose Pool equals poolType.
	ListByPool(ctx context.Context, poolType PoolType) ([]*Domain, error)

	// ListDueForTest returns domains whose TestSchedule.NextTest is <= asOf.
	ListDueForTest(ctx context.Context, asOf time.Time) ([]*Domain, error)
}

// PoolRepository is the typed surface over the single row-per-type Pool
// table (spec §4.2).
type PoolRepository interface {
	Get(ctx context.Context, t PoolType) (*Pool, error)
	Upsert(ctx context.Context, p *Pool) error
	AddMember(ctx context.Context, t PoolType, domainID string) error
	RemoveMember(ctx context.Context, t PoolType, domainID string) error
}

// TestRepository is the typed surface over PlacementTest rows (spec §4.2).
type TestRepository interface {
	Get(ctx context.Context, uuid string) (*PlacementTest, error)
	Create(ctx context.Context, t *PlacementTest) error
	Update(ctx context.Context, t *PlacementTest) error
	ListByDomain(ctx context.Context, domainID string) ([]*PlacementTest, error)
}

// JobLogRepository is the audit trail for job attempts (spec §3). Entries are
// removed only by an explicit PurgeOlderThan call.
type JobLogRepository interface {
	Append(ctx context.Context, e JobLogEntry) error
	ListByJob(ctx context.Context, jobID string) ([]JobLogEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// NotificationRepository is the typed surface over Notification rows
// (spec §4.2, §4.10).
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	ListUnreadByLevel(ctx context.Context, level NotificationLevel) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error
}
