package repository

import (
	"context"
	"testing"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDomainRepository_GetMissing(t *testing.T) {
	repo := NewInMemoryDomainRepository()
	_, err := repo.Get(context.Background(), "nope")
	var notFound *domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestInMemoryDomainRepository_UpsertAndGetIsolated(t *testing.T) {
	repo := NewInMemoryDomainRepository()
	d := &domain.Domain{ID: "d1", Name: "a.example.com", Pool: domain.PoolInitialWarming}
	require.NoError(t, repo.Upsert(context.Background(), d))

	d.Name = "mutated-after-upsert"
	got, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "a.example.com", got.Name, "repository must not alias caller's struct")
}

func TestInMemoryDomainRepository_UpdateConditional(t *testing.T) {
	repo := NewInMemoryDomainRepository()
	require.NoError(t, repo.Upsert(context.Background(), &domain.Domain{ID: "d1", HealthScore: 10}))

	updated, err := repo.UpdateConditional(context.Background(), "d1", func(d *domain.Domain) error {
		d.HealthScore = 90
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 90, updated.HealthScore)
}

func TestInMemoryDomainRepository_AppendRotationEvent(t *testing.T) {
	repo := NewInMemoryDomainRepository()
	require.NoError(t, repo.Upsert(context.Background(), &domain.Domain{ID: "d1", Pool: domain.PoolActive}))

	ev := domain.RotationEvent{At: time.Now(), FromPool: domain.PoolActive, ToPool: domain.PoolRecovery, Action: "rotated_out"}
	updated, err := repo.AppendRotationEvent(context.Background(), "d1", domain.PoolRecovery, ev)
	require.NoError(t, err)
	assert.Equal(t, domain.PoolRecovery, updated.Pool)
	require.Len(t, updated.RotationLog, 1)
}

func TestInMemoryDomainRepository_ListByPoolAndDueForTest(t *testing.T) {
	repo := NewInMemoryDomainRepository()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Upsert(ctx, &domain.Domain{ID: "d1", Pool: domain.PoolActive, TestSchedule: domain.TestSchedule{NextTest: now.Add(-time.Hour)}}))
	require.NoError(t, repo.Upsert(ctx, &domain.Domain{ID: "d2", Pool: domain.PoolActive, TestSchedule: domain.TestSchedule{NextTest: now.Add(time.Hour)}}))
	require.NoError(t, repo.Upsert(ctx, &domain.Domain{ID: "d3", Pool: domain.PoolRecovery}))

	byPool, err := repo.ListByPool(ctx, domain.PoolActive)
	require.NoError(t, err)
	assert.Len(t, byPool, 2)

	due, err := repo.ListDueForTest(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "d1", due[0].ID)
}

func TestInMemoryPoolRepository_MemberLifecycle(t *testing.T) {
	repo := NewInMemoryPoolRepository()
	ctx := context.Background()

	require.NoError(t, repo.AddMember(ctx, domain.PoolActive, "d1"))
	require.NoError(t, repo.AddMember(ctx, domain.PoolActive, "d1"))

	p, err := repo.Get(ctx, domain.PoolActive)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, p.MemberIDs, "adding twice must not duplicate")

	require.NoError(t, repo.RemoveMember(ctx, domain.PoolActive, "d1"))
	p, err = repo.Get(ctx, domain.PoolActive)
	require.NoError(t, err)
	assert.Empty(t, p.MemberIDs)
}

func TestInMemoryJobLogRepository_PurgeOlderThan(t *testing.T) {
	repo := NewInMemoryJobLogRepository()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Append(ctx, domain.JobLogEntry{JobID: "j1", Timestamp: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Append(ctx, domain.JobLogEntry{JobID: "j2", Timestamp: now}))

	purged, err := repo.PurgeOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	remaining, err := repo.ListByJob(ctx, "j2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestInMemoryNotificationRepository_MarkRead(t *testing.T) {
	repo := NewInMemoryNotificationRepository()
	ctx := context.Background()
	n := &domain.Notification{Level: domain.NotificationCritical, Text: "low score"}
	require.NoError(t, repo.Create(ctx, n))

	unread, err := repo.ListUnreadByLevel(ctx, domain.NotificationCritical)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, repo.MarkRead(ctx, unread[0].ID))
	unread, err = repo.ListUnreadByLevel(ctx, domain.NotificationCritical)
	require.NoError(t, err)
	assert.Empty(t, unread)
}
