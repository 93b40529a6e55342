// Package repository implements domain.DomainRepository, PoolRepository,
// TestRepository, JobLogRepository, and NotificationRepository: an
// in-memory reference implementation for tests and small deployments, and a
// Postgres-backed implementation (postgres.go) for production use, grounded
// on the source product's internal/repository/*_postgres.go pattern of
// Masterminds/squirrel query building over database/sql.
package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/google/uuid"
)

// InMemoryDomainRepository is a concurrency-safe, non-persistent
// DomainRepository used by tests; the reference cmd/engine host wires the
// Postgres repositories instead.
type InMemoryDomainRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.Domain
	version map[string]int
}

// NewInMemoryDomainRepository builds an empty repository.
func NewInMemoryDomainRepository() *InMemoryDomainRepository {
	return &InMemoryDomainRepository{
		byID:    make(map[string]*domain.Domain),
		version: make(map[string]int),
	}
}

func clone(d *domain.Domain) *domain.Domain {
	cp := *d
	cp.TestHistory = append([]domain.TestHistoryEntry(nil), d.TestHistory...)
	cp.RotationLog = append([]domain.RotationEvent(nil), d.RotationLog...)
	cp.Campaigns = append([]domain.CampaignRef(nil), d.Campaigns...)
	return &cp
}

func (r *InMemoryDomainRepository) Get(ctx context.Context, id string) (*domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, &domain.ErrNotFound{Entity: "Domain", ID: id}
	}
	return clone(d), nil
}

func (r *InMemoryDomainRepository) Upsert(ctx context.Context, d *domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	r.byID[d.ID] = clone(d)
	r.version[d.ID]++
	return nil
}

func (r *InMemoryDomainRepository) UpdateConditional(ctx context.Context, id string, fn func(d *domain.Domain) error) (*domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return nil, &domain.ErrNotFound{Entity: "Domain", ID: id}
	}
	working := clone(d)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now().UTC()
	r.byID[id] = clone(working)
	r.version[id]++
	return clone(working), nil
}

func (r *InMemoryDomainRepository) AppendRotationEvent(ctx context.Context, id string, toPool domain.PoolType, ev domain.RotationEvent) (*domain.Domain, error) {
	return r.UpdateConditional(ctx, id, func(d *domain.Domain) error {
		d.RotationLog = append(d.RotationLog, ev)
		d.Pool = toPool
		d.PoolEntryDate = ev.At
		return nil
	})
}

func (r *InMemoryDomainRepository) ListByPool(ctx context.Context, poolType domain.PoolType) ([]*domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Domain
	for _, d := range r.byID {
		if d.Pool == poolType {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryDomainRepository) ListDueForTest(ctx context.Context, asOf time.Time) ([]*domain.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Domain
	for _, d := range r.byID {
		if !d.TestSchedule.NextTest.After(asOf) {
			out = append(out, clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ domain.DomainRepository = (*InMemoryDomainRepository)(nil)

// InMemoryPoolRepository keeps one row per PoolType in memory.
type InMemoryPoolRepository struct {
	mu   sync.Mutex
	byID map[domain.PoolType]*domain.Pool
}

func NewInMemoryPoolRepository() *InMemoryPoolRepository {
	return &InMemoryPoolRepository{byID: make(map[domain.PoolType]*domain.Pool)}
}

func (r *InMemoryPoolRepository) Get(ctx context.Context, t domain.PoolType) (*domain.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[t]
	if !ok {
		return nil, &domain.ErrNotFound{Entity: "Pool", ID: string(t)}
	}
	cp := *p
	cp.MemberIDs = append([]string(nil), p.MemberIDs...)
	return &cp, nil
}

func (r *InMemoryPoolRepository) Upsert(ctx context.Context, p *domain.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	cp.MemberIDs = append([]string(nil), p.MemberIDs...)
	r.byID[p.Type] = &cp
	return nil
}

func (r *InMemoryPoolRepository) AddMember(ctx context.Context, t domain.PoolType, domainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[t]
	if !ok {
		p = &domain.Pool{Type: t}
		r.byID[t] = p
	}
	for _, id := range p.MemberIDs {
		if id == domainID {
			return nil
		}
	}
	p.MemberIDs = append(p.MemberIDs, domainID)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryPoolRepository) RemoveMember(ctx context.Context, t domain.PoolType, domainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[t]
	if !ok {
		return nil
	}
	for i, id := range p.MemberIDs {
		if id == domainID {
			p.MemberIDs = append(p.MemberIDs[:i], p.MemberIDs[i+1:]...)
			break
		}
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

var _ domain.PoolRepository = (*InMemoryPoolRepository)(nil)

// InMemoryTestRepository stores PlacementTest rows keyed by uuid.
type InMemoryTestRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.PlacementTest
}

func NewInMemoryTestRepository() *InMemoryTestRepository {
	return &InMemoryTestRepository{byID: make(map[string]*domain.PlacementTest)}
}

func (r *InMemoryTestRepository) Get(ctx context.Context, id string) (*domain.PlacementTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, &domain.ErrNotFound{Entity: "PlacementTest", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (r *InMemoryTestRepository) Create(ctx context.Context, t *domain.PlacementTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *InMemoryTestRepository) Update(ctx context.Context, t *domain.PlacementTest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[t.ID]; !ok {
		return &domain.ErrNotFound{Entity: "PlacementTest", ID: t.ID}
	}
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *InMemoryTestRepository) ListByDomain(ctx context.Context, domainID string) ([]*domain.PlacementTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PlacementTest
	for _, t := range r.byID {
		if t.DomainID == domainID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ domain.TestRepository = (*InMemoryTestRepository)(nil)

// InMemoryJobLogRepository retains job attempt audit entries.
type InMemoryJobLogRepository struct {
	mu      sync.Mutex
	entries []domain.JobLogEntry
}

func NewInMemoryJobLogRepository() *InMemoryJobLogRepository {
	return &InMemoryJobLogRepository{}
}

func (r *InMemoryJobLogRepository) Append(ctx context.Context, e domain.JobLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *InMemoryJobLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.JobLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JobLogEntry
	for _, e := range r.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *InMemoryJobLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	purged := 0
	for _, e := range r.entries {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return purged, nil
}

var _ domain.JobLogRepository = (*InMemoryJobLogRepository)(nil)

// InMemoryNotificationRepository stores Notification rows.
type InMemoryNotificationRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Notification
}

func NewInMemoryNotificationRepository() *InMemoryNotificationRepository {
	return &InMemoryNotificationRepository{byID: make(map[string]*domain.Notification)}
}

func (r *InMemoryNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	cp := *n
	r.byID[n.ID] = &cp
	return nil
}

func (r *InMemoryNotificationRepository) ListUnreadByLevel(ctx context.Context, level domain.NotificationLevel) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for _, n := range r.byID {
		if n.Level == level && !n.Read {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryNotificationRepository) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok {
		return &domain.ErrNotFound{Entity: "Notification", ID: id}
	}
	n.Read = true
	return nil
}

var _ domain.NotificationRepository = (*InMemoryNotificationRepository)(nil)
