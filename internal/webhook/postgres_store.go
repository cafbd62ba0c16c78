package webhook

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists webhook delivery records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed webhook record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, r *Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider, external_event_id, event_type,
			user_id, payload, received_at, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0)`,
		r.ID, r.Provider, r.ExternalEventID, r.EventType, r.UserID, r.Payload, r.ReceivedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (p *PostgresStore) MarkProcessed(ctx context.Context, id, note string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed_at = NOW(), note = $2, last_error = NULL
		WHERE id = $1`, id, note)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("webhook: record %s not found", id)
	}
	return nil
}

func (p *PostgresStore) MarkFailed(ctx context.Context, id, errMsg string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE webhook_events SET attempts = attempts + 1, last_error = $2
		WHERE id = $1`, id, errMsg)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("webhook: record %s not found", id)
	}
	return nil
}

func (p *PostgresStore) ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]*Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, provider, external_event_id, event_type, user_id, payload,
			received_at, processed_at, attempts, COALESCE(last_error, ''), COALESCE(note, '')
		FROM webhook_events
		WHERE processed_at IS NULL AND attempts < $1
		ORDER BY received_at ASC
		LIMIT $2`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		r := &Record{}
		var processedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.Provider, &r.ExternalEventID, &r.EventType,
			&r.UserID, &r.Payload, &r.ReceivedAt, &processedAt, &r.Attempts,
			&r.LastError, &r.Note); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			r.ProcessedAt = &processedAt.Time
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Migrate creates the webhook_events table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webhook_events (
			id                VARCHAR(36) PRIMARY KEY,
			provider          VARCHAR(20) NOT NULL,
			external_event_id VARCHAR(255) NOT NULL,
			event_type        VARCHAR(40) NOT NULL,
			user_id           VARCHAR(64) NOT NULL,
			payload           BYTEA NOT NULL,
			received_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at      TIMESTAMPTZ,
			attempts          INTEGER NOT NULL DEFAULT 0,
			last_error        TEXT,
			note              VARCHAR(40),
			CONSTRAINT uq_webhook_provider_event UNIQUE (provider, external_event_id)
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_unprocessed
			ON webhook_events(received_at) WHERE processed_at IS NULL;
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
