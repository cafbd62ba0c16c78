package subscription

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/khanyab/applyflow/internal/plans"
)

// PostgresStore persists subscriptions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, s *Subscription) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, user_id, plan, status, provider, external_id,
			current_period_start, last_event_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.UserID, string(s.Plan), string(s.Status), s.Provider,
		nullString(s.ExternalID), nullTime(s.CurrentPeriodStart),
		s.LastEventAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		// Partial unique index: one non-canceled subscription per user
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) GetByUser(ctx context.Context, userID string) (*Subscription, error) {
	return p.scanSubscription(p.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan, status, provider, external_id,
			current_period_start, last_event_at, created_at, updated_at
		FROM subscriptions WHERE user_id = $1
		ORDER BY created_at DESC LIMIT 1`, userID))
}

func (p *PostgresStore) Update(ctx context.Context, s *Subscription) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE subscriptions SET plan = $1, status = $2, external_id = $3,
			current_period_start = $4, last_event_at = $5, updated_at = $6
		WHERE id = $7`,
		string(s.Plan), string(s.Status), nullString(s.ExternalID),
		nullTime(s.CurrentPeriodStart), s.LastEventAt, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) scanSubscription(row *sql.Row) (*Subscription, error) {
	s := &Subscription{}
	var (
		plan, status string
		externalID   sql.NullString
		periodStart  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &plan, &status, &s.Provider, &externalID,
		&periodStart, &s.LastEventAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Plan = plans.ID(plan)
	s.Status = Status(status)
	if externalID.Valid {
		s.ExternalID = externalID.String
	}
	if periodStart.Valid {
		s.CurrentPeriodStart = periodStart.Time
	}
	return s, nil
}

// Migrate creates the subscriptions table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id                   VARCHAR(36) PRIMARY KEY,
			user_id              VARCHAR(64) NOT NULL,
			plan                 VARCHAR(20) NOT NULL,
			status               VARCHAR(20) NOT NULL,
			provider             VARCHAR(20) NOT NULL,
			external_id          VARCHAR(255),
			current_period_start TIMESTAMPTZ,
			last_event_at        TIMESTAMPTZ NOT NULL,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_live_user
			ON subscriptions(user_id) WHERE status <> 'canceled';
		CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id);
	`)
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ Store = (*PostgresStore)(nil)
