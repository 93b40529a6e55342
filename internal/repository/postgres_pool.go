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
	"github.com/lib/pq"
)

// PostgresPoolRepository implements domain.PoolRepository over a
// "pools" table with one row per PoolType; membership is kept as a
// text[] column via github.com/lib/pq's array support.
type PostgresPoolRepository struct {
	db *sql.DB
}

func NewPostgresPoolRepository(db *sql.DB) *PostgresPoolRepository {
	return &PostgresPoolRepository{db: db}
}

func (r *PostgresPoolRepository) Get(ctx context.Context, t domain.PoolType) (*domain.Pool, error) {
	query, args, err := psql.Select("type", "sending", "warmup", "automation_rules", "member_ids", "updated_at").
		From("pools").Where(sq.Eq{"type": string(t)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var (
		sendingJSON, warmupJSON, rulesJSON []byte
		members                            pq.StringArray
		p                                  domain.Pool
		typ                                string
	)
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&typ, &sendingJSON, &warmupJSON, &rulesJSON, &members, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "Pool", ID: string(t)}
	}
	if err != nil {
		return nil, fmt.Errorf("query pool: %w", err)
	}
	p.Type = domain.PoolType(typ)
	p.MemberIDs = []string(members)
	if err := json.Unmarshal(sendingJSON, &p.Sending); err != nil {
		return nil, fmt.Errorf("unmarshal sending: %w", err)
	}
	if err := json.Unmarshal(warmupJSON, &p.Warmup); err != nil {
		return nil, fmt.Errorf("unmarshal warmup: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &p.AutomationRules); err != nil {
		return nil, fmt.Errorf("unmarshal automation rules: %w", err)
	}
	return &p, nil
}

func (r *PostgresPoolRepository) Upsert(ctx context.Context, p *domain.Pool) error {
	sendingJSON, err := json.Marshal(p.Sending)
	if err != nil {
		return fmt.Errorf("marshal sending: %w", err)
	}
	warmupJSON, err := json.Marshal(p.Warmup)
	if err != nil {
		return fmt.Errorf("marshal warmup: %w", err)
	}
	rulesJSON, err := json.Marshal(p.AutomationRules)
	if err != nil {
		return fmt.Errorf("marshal automation rules: %w", err)
	}
	p.UpdatedAt = time.Now().UTC()
	query, args, err := psql.Insert("pools").
		Columns("type", "sending", "warmup", "automation_rules", "member_ids", "updated_at").
		Values(string(p.Type), sendingJSON, warmupJSON, rulesJSON, pq.Array(p.MemberIDs), p.UpdatedAt).
		Suffix(`ON CONFLICT (type) DO UPDATE SET
			sending = EXCLUDED.sending, warmup = EXCLUDED.warmup,
			automation_rules = EXCLUDED.automation_rules,
			member_ids = EXCLUDED.member_ids, updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

func (r *PostgresPoolRepository) AddMember(ctx context.Context, t domain.PoolType, domainID string) error {
	query, args, err := psql.Update("pools").
		Set("member_ids", sq.Expr("array_append(member_ids, ?::text)", domainID)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.And{sq.Eq{"type": string(t)}, sq.Expr("NOT (? = ANY(member_ids))", domainID)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("add pool member: %w", err)
	}
	return nil
}

func (r *PostgresPoolRepository) RemoveMember(ctx context.Context, t domain.PoolType, domainID string) error {
	query, args, err := psql.Update("pools").
		Set("member_ids", sq.Expr("array_remove(member_ids, ?::text)", domainID)).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"type": string(t)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("remove pool member: %w", err)
	}
	return nil
}

var _ domain.PoolRepository = (*PostgresPoolRepository)(nil)

// PostgresTestRepository implements domain.TestRepository over a
// "placement_tests" table, with TestEmails kept as a JSONB column.
type PostgresTestRepository struct {
	db *sql.DB
}

func NewPostgresTestRepository(db *sql.DB) *PostgresTestRepository {
	return &PostgresTestRepository{db: db}
}

var testColumns = []string{"id", "domain_id", "created_at", "completed_at", "status", "test_emails", "overall_score", "inbox", "spam"}

func scanTest(scan func(...interface{}) error) (*domain.PlacementTest, error) {
	var t domain.PlacementTest
	var status string
	var emailsJSON []byte
	if err := scan(&t.ID, &t.DomainID, &t.CreatedAt, &t.CompletedAt, &status, &emailsJSON, &t.OverallScore, &t.Inbox, &t.Spam); err != nil {
		return nil, err
	}
	t.Status = domain.PlacementTestStatus(status)
	if err := json.Unmarshal(emailsJSON, &t.TestEmails); err != nil {
		return nil, fmt.Errorf("unmarshal test emails: %w", err)
	}
	return &t, nil
}

func (r *PostgresTestRepository) Get(ctx context.Context, id string) (*domain.PlacementTest, error) {
	query, args, err := psql.Select(testColumns...).From("placement_tests").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	t, err := scanTest(r.db.QueryRowContext(ctx, query, args...).Scan)
	if err == sql.ErrNoRows {
		return nil, &domain.ErrNotFound{Entity: "PlacementTest", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query placement test: %w", err)
	}
	return t, nil
}

func (r *PostgresTestRepository) Create(ctx context.Context, t *domain.PlacementTest) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	emailsJSON, err := json.Marshal(t.TestEmails)
	if err != nil {
		return fmt.Errorf("marshal test emails: %w", err)
	}
	query, args, err := psql.Insert("placement_tests").
		Columns(testColumns...).
		Values(t.ID, t.DomainID, t.CreatedAt, t.CompletedAt, string(t.Status), emailsJSON, t.OverallScore, t.Inbox, t.Spam).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert placement test: %w", err)
	}
	return nil
}

func (r *PostgresTestRepository) Update(ctx context.Context, t *domain.PlacementTest) error {
	emailsJSON, err := json.Marshal(t.TestEmails)
	if err != nil {
		return fmt.Errorf("marshal test emails: %w", err)
	}
	query, args, err := psql.Update("placement_tests").
		Set("completed_at", t.CompletedAt).Set("status", string(t.Status)).
		Set("test_emails", emailsJSON).Set("overall_score", t.OverallScore).
		Set("inbox", t.Inbox).Set("spam", t.Spam).
		Where(sq.Eq{"id": t.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update placement test: %w", err)
	}
	return nil
}

func (r *PostgresTestRepository) ListByDomain(ctx context.Context, domainID string) ([]*domain.PlacementTest, error) {
	query, args, err := psql.Select(testColumns...).From("placement_tests").
		Where(sq.Eq{"domain_id": domainID}).OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query placement tests: %w", err)
	}
	defer rows.Close()
	var out []*domain.PlacementTest
	for rows.Next() {
		t, err := scanTest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan placement test: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ domain.TestRepository = (*PostgresTestRepository)(nil)

// PostgresNotificationRepository implements domain.NotificationRepository
// over a flat "notifications" table.
type PostgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query, args, err := psql.Insert("notifications").
		Columns("id", "level", "text", "domain_id", "deliver_ui", "deliver_email", "read", "created_at").
		Values(n.ID, string(n.Level), n.Text, n.DomainID, n.DeliverUI, n.DeliverEmail, n.Read, n.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) ListUnreadByLevel(ctx context.Context, level domain.NotificationLevel) ([]*domain.Notification, error) {
	query, args, err := psql.Select("id", "level", "text", "domain_id", "deliver_ui", "deliver_email", "read", "created_at").
		From("notifications").
		Where(sq.And{sq.Eq{"level": string(level)}, sq.Eq{"read": false}}).
		OrderBy("created_at ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()
	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var level string
		if err := rows.Scan(&n.ID, &level, &n.Text, &n.DomainID, &n.DeliverUI, &n.DeliverEmail, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Level = domain.NotificationLevel(level)
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id string) error {
	query, args, err := psql.Update("notifications").Set("read", true).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &domain.ErrNotFound{Entity: "Notification", ID: id}
	}
	return nil
}

var _ domain.NotificationRepository = (*PostgresNotificationRepository)(nil)
