package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/domainfleet/engine/internal/domain"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresDomainRepository implements domain.DomainRepository over a single
// "domains" table, keeping the nested history/log/campaign slices as JSONB
// columns the way the source product's task and email-queue repositories
// keep structured state.
type PostgresDomainRepository struct {
	db *sql.DB
}

func NewPostgresDomainRepository(db *sql.DB) *PostgresDomainRepository {
	return &PostgresDomainRepository{db: db}
}

type domainRow struct {
	ID                   string
	Name                 string
	TenantID             string
	ExternalProviderID   string
	Pool                 string
	MailboxClass         string
	SendingJSON          []byte
	WarmupJSON           []byte
	HealthScore          int
	ConsecutiveLowScores int
	PoolEntryDate        time.Time
	TestScheduleJSON     []byte
	HealthMetricsJSON    []byte
	TestHistoryJSON      []byte
	RotationLogJSON      []byte
	CampaignsJSON        []byte
	ActiveTestID         string
	Deactivated          bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func toRow(d *domain.Domain) (*domainRow, error) {
	row := &domainRow{
		ID: d.ID, Name: d.Name, TenantID: d.TenantID, ExternalProviderID: d.ExternalProviderID,
		Pool: string(d.Pool), MailboxClass: string(d.MailboxClass),
		HealthScore: d.HealthScore, ConsecutiveLowScores: d.ConsecutiveLowScores,
		PoolEntryDate: d.PoolEntryDate, ActiveTestID: d.ActiveTestID, Deactivated: d.Deactivated,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
	var err error
	if row.SendingJSON, err = json.Marshal(d.Sending); err != nil {
		return nil, fmt.Errorf("marshal sending: %w", err)
	}
	if row.WarmupJSON, err = json.Marshal(d.Warmup); err != nil {
		return nil, fmt.Errorf("marshal warmup: %w", err)
	}
	if row.TestScheduleJSON, err = json.Marshal(d.TestSchedule); err != nil {
		return nil, fmt.Errorf("marshal test schedule: %w", err)
	}
	if row.HealthMetricsJSON, err = json.Marshal(d.HealthMetrics); err != nil {
		return nil, fmt.Errorf("marshal health metrics: %w", err)
	}
	if row.TestHistoryJSON, err = json.Marshal(d.TestHistory); err != nil {
		return nil, fmt.Errorf("marshal test history: %w", err)
	}
	if row.RotationLogJSON, err = json.Marshal(d.RotationLog); err != nil {
		return nil, fmt.Errorf("marshal rotation log: %w", err)
	}
	if row.CampaignsJSON, err = json.Marshal(d.Campaigns); err != nil {
		return nil, fmt.Errorf("marshal campaigns: %w", err)
	}
	return row, nil
}

func scanDomain(scan func(...interface{}) error) (*domain.Domain, error) {
	var row domainRow
	if err := scan(
		&row.ID, &row.Name, &row.TenantID, &row.ExternalProviderID, &row.Pool, &row.MailboxClass,
		&row.SendingJSON, &row.WarmupJSON, &row.HealthScore, &row.ConsecutiveLowScores,
		&row.PoolEntryDate, &row.TestScheduleJSON, &row.HealthMetricsJSON, &row.TestHistoryJSON,
		&row.RotationLogJSON, &row.CampaignsJSON, &row.ActiveTestID, &row.Deactivated,
		&row.CreatedAt, &row.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d := &domain.Domain{
		ID: row.ID, Name: row.Name, TenantID: row.TenantID, ExternalProviderID: row.ExternalProviderID,
		Pool: domain.PoolType(row.Pool), MailboxClass: domain.MailboxClass(row.MailboxClass),
		HealthScore: row.HealthScore, ConsecutiveLowScores: row.ConsecutiveLowScores,
		PoolEntryDate: row.PoolEntryDate, ActiveTestID: row.ActiveTestID, Deactivated: row.Deactivated,
		CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
	}
	if err := json.Unmarshal(row.SendingJSON, &d.Sending); err != nil {
		return nil, fmt.Errorf("unmarshal sending: %w", err)
	}
	if err := json.Unmarshal(row.WarmupJSON, &d.Warmup); err != nil {
		return nil, fmt.Errorf("unmarshal warmup: %w", err)
	}
	if err := json.Unmarshal(row.TestScheduleJSON, &d.TestSchedule); err != nil {
		return nil, fmt.Errorf("unmarshal test schedule: %w", err)
	}
	if err := json.Unmarshal(row.HealthMetricsJSON, &d.HealthMetrics); err != nil {
		return nil, fmt.Errorf("unmarshal health metrics: %w", err)
	}
	if err := json.Unmarshal(row.TestHistoryJSON, &d.TestHistory); err != nil {
		return nil, fmt.Errorf("unmarshal test history: %w", err)
	}
	if err := json.Unmarshal(row.RotationLogJSON, &d.RotationLog); err != nil {
		return nil, fmt.Errorf("unmarshal rotation log: %w", err)
	}
	if err := json.Unmarshal(row.CampaignsJSON, &d.Campaigns); err != nil {
		return nil, fmt.Errorf("unmarshal campaigns: %w", err)
	}
	return d, nil
}

var domainColumns = []string{
	"id", "name", "tenant_id", "external_provider_id", "pool", "mailbox_class",
	"sending", "warmup", "health_score", "consecutive_low_scores",
	"pool_entry_date", "test_schedule", "health_metrics", "test_history",
	"rotation_log", "campaigns", "active_test_id", "deactivated",
	"created_at", "updated_at",
}

func (r *PostgresDomainRepository) Get(ctx context.Context, id string) (*domain.Domain, error) {
	query, args, err := psql.Select(domainColumns...).From("domains").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := scanDomain(r.db.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "Domain", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query domain: %w", err)
	}
	return d, nil
}

func (r *PostgresDomainRepository) Upsert(ctx context.Context, d *domain.Domain) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	row, err := toRow(d)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("domains").
		Columns(domainColumns...).
		Values(
			row.ID, row.Name, row.TenantID, row.ExternalProviderID, row.Pool, row.MailboxClass,
			row.SendingJSON, row.WarmupJSON, row.HealthScore, row.ConsecutiveLowScores,
			row.PoolEntryDate, row.TestScheduleJSON, row.HealthMetricsJSON, row.TestHistoryJSON,
			row.RotationLogJSON, row.CampaignsJSON, row.ActiveTestID, row.Deactivated,
			row.CreatedAt, row.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, tenant_id = EXCLUDED.tenant_id,
			external_provider_id = EXCLUDED.external_provider_id, pool = EXCLUDED.pool,
			mailbox_class = EXCLUDED.mailbox_class, sending = EXCLUDED.sending,
			warmup = EXCLUDED.warmup, health_score = EXCLUDED.health_score,
			consecutive_low_scores = EXCLUDED.consecutive_low_scores,
			pool_entry_date = EXCLUDED.pool_entry_date, test_schedule = EXCLUDED.test_schedule,
			health_metrics = EXCLUDED.health_metrics, test_history = EXCLUDED.test_history,
			rotation_log = EXCLUDED.rotation_log, campaigns = EXCLUDED.campaigns,
			active_test_id = EXCLUDED.active_test_id, deactivated = EXCLUDED.deactivated,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}
	return nil
}

// UpdateConditional reads the row, applies fn, and writes it back inside a
// transaction with a SELECT ... FOR UPDATE, so concurrent updates of the
// same row wait for each other rather than failing with *ErrConflict.
func (r *PostgresDomainRepository) UpdateConditional(ctx context.Context, id string, fn func(d *domain.Domain) error) (*domain.Domain, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := psql.Select(domainColumns...).From("domains").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	d, err := scanDomain(tx.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "Domain", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query domain for update: %w", err)
	}
	if err := fn(d); err != nil {
		return nil, err
	}
	d.UpdatedAt = time.Now().UTC()
	row, err := toRow(d)
	if err != nil {
		return nil, err
	}
	update, args, err := psql.Update("domains").
		Set("name", row.Name).Set("tenant_id", row.TenantID).Set("pool", row.Pool).
		Set("mailbox_class", row.MailboxClass).Set("sending", row.SendingJSON).
		Set("warmup", row.WarmupJSON).Set("health_score", row.HealthScore).
		Set("consecutive_low_scores", row.ConsecutiveLowScores).
		Set("pool_entry_date", row.PoolEntryDate).Set("test_schedule", row.TestScheduleJSON).
		Set("health_metrics", row.HealthMetricsJSON).Set("test_history", row.TestHistoryJSON).
		Set("rotation_log", row.RotationLogJSON).Set("campaigns", row.CampaignsJSON).
		Set("active_test_id", row.ActiveTestID).Set("deactivated", row.Deactivated).
		Set("updated_at", row.UpdatedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return nil, fmt.Errorf("update domain: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return d, nil
}

func (r *PostgresDomainRepository) AppendRotationEvent(ctx context.Context, id string, toPool domain.PoolType, ev domain.RotationEvent) (*domain.Domain, error) {
	return r.UpdateConditional(ctx, id, func(d *domain.Domain) error {
		d.RotationLog = append(d.RotationLog, ev)
		d.Pool = toPool
		d.PoolEntryDate = ev.At
		return nil
	})
}

func (r *PostgresDomainRepository) ListByPool(ctx context.Context, poolType domain.PoolType) ([]*domain.Domain, error) {
	query, args, err := psql.Select(domainColumns...).From("domains").Where(sq.Eq{"pool": string(poolType)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryDomains(ctx, query, args...)
}

func (r *PostgresDomainRepository) ListDueForTest(ctx context.Context, asOf time.Time) ([]*domain.Domain, error) {
	query, args, err := psql.Select(domainColumns...).From("domains").
		Where(sq.LtOrEq{"(test_schedule->>'NextTest')::timestamptz": asOf}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return r.queryDomains(ctx, query, args...)
}

func (r *PostgresDomainRepository) queryDomains(ctx context.Context, query string, args ...interface{}) ([]*domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()
	var out []*domain.Domain
	for rows.Next() {
		d, err := scanDomain(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ domain.DomainRepository = (*PostgresDomainRepository)(nil)

// PostgresJobLogRepository implements domain.JobLogRepository over a flat
// "job_logs" append-only table; rows are deleted only by PurgeOlderThan,
// which nothing in this module calls on a schedule.
type PostgresJobLogRepository struct {
	db *sql.DB
}

func NewPostgresJobLogRepository(db *sql.DB) *PostgresJobLogRepository {
	return &PostgresJobLogRepository{db: db}
}

func (r *PostgresJobLogRepository) Append(ctx context.Context, e domain.JobLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	query, args, err := psql.Insert("job_logs").
		Columns("id", "job_id", "type", "status", "duration_ms", "error", "timestamp").
		Values(e.ID, e.JobID, string(e.Type), string(e.Status), e.Duration.Milliseconds(), e.Error, e.Timestamp).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job log: %w", err)
	}
	return nil
}

func (r *PostgresJobLogRepository) ListByJob(ctx context.Context, jobID string) ([]domain.JobLogEntry, error) {
	query, args, err := psql.Select("id", "job_id", "type", "status", "duration_ms", "error", "timestamp").
		From("job_logs").Where(sq.Eq{"job_id": jobID}).OrderBy("timestamp ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query job logs: %w", err)
	}
	defer rows.Close()
	var out []domain.JobLogEntry
	for rows.Next() {
		var e domain.JobLogEntry
		var durationMs int64
		var jobType, status string
		if err := rows.Scan(&e.ID, &e.JobID, &jobType, &status, &durationMs, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan job log: %w", err)
		}
		e.Type = domain.JobType(jobType)
		e.Status = domain.JobLogStatus(status)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresJobLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query, args, err := psql.Delete("job_logs").Where(sq.Lt{"timestamp": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge job logs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

var _ domain.JobLogRepository = (*PostgresJobLogRepository)(nil)
