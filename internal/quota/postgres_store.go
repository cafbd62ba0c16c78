package quota

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/khanyab/applyflow/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed quota store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the quota tables (development convenience; production
// deployments run the goose migrations instead)
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS quota_periods (
			id           VARCHAR(36) PRIMARY KEY,
			user_id      VARCHAR(64) NOT NULL,
			period       VARCHAR(16) NOT NULL,
			used         INTEGER NOT NULL DEFAULT 0,
			quota_limit  INTEGER NOT NULL,
			updated_at   TIMESTAMPTZ DEFAULT NOW(),
			CONSTRAINT uq_quota_user_period UNIQUE (user_id, period),
			CONSTRAINT chk_used_nonneg CHECK (used >= 0),
			CONSTRAINT chk_used_within_limit CHECK (used <= quota_limit)
		);

		CREATE INDEX IF NOT EXISTS idx_quota_user ON quota_periods(user_id);
	`)
	return err
}

// GetUsage retrieves the usage row for a user's period, nil if not opened
func (p *PostgresStore) GetUsage(ctx context.Context, userID, period string) (*Usage, error) {
	u := &Usage{UserID: userID, Period: period}

	err := p.db.QueryRowContext(ctx, `
		SELECT used, quota_limit, updated_at
		FROM quota_periods WHERE user_id = $1 AND period = $2
	`, userID, period).Scan(&u.Used, &u.Limit, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// OpenPeriod creates the period row with a zero counter and the limit
// snapshot. Concurrent opens are resolved by the unique constraint: the
// first insert wins and the rest are no-ops.
func (p *PostgresStore) OpenPeriod(ctx context.Context, userID, period string, limit int) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO quota_periods (id, user_id, period, used, quota_limit, updated_at)
		VALUES ($1, $2, $3, 0, $4, NOW())
		ON CONFLICT (user_id, period) DO NOTHING
	`, idgen.WithPrefix("qp_"), userID, period, limit)
	if err != nil {
		return fmt.Errorf("failed to open period: %w", err)
	}
	return nil
}

// Consume increments the counter only when the result stays within the
// snapshotted limit. The guard lives in the WHERE clause, so concurrent
// consumers serialize on the row and exactly limit units ever succeed.
func (p *PostgresStore) Consume(ctx context.Context, userID, period string, amount int) (*Usage, error) {
	u := &Usage{UserID: userID, Period: period}

	err := p.db.QueryRowContext(ctx, `
		UPDATE quota_periods SET
			used       = used + $3,
			updated_at = NOW()
		WHERE user_id = $1 AND period = $2 AND used + $3 <= quota_limit
		RETURNING used, quota_limit, updated_at
	`, userID, period, amount).Scan(&u.Used, &u.Limit, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		// Either the period is missing or the increment would pass the
		// limit. Distinguish so callers can report the right error.
		var exists bool
		checkErr := p.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM quota_periods WHERE user_id = $1 AND period = $2)
		`, userID, period).Scan(&exists)
		if checkErr != nil {
			return nil, checkErr
		}
		if !exists {
			return nil, ErrPeriodClosed
		}
		return nil, ErrQuotaExceeded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume quota: %w", err)
	}
	return u, nil
}
