package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema creates the audit table. UPDATE and DELETE are never issued.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id             UUID PRIMARY KEY,
		type           TEXT NOT NULL,
		call_id        TEXT NOT NULL DEFAULT '',
		destination_id TEXT NOT NULL DEFAULT '',
		phone_hash     TEXT NOT NULL DEFAULT '',
		ip_address     TEXT NOT NULL DEFAULT '',
		outcome        TEXT NOT NULL DEFAULT '',
		reason         TEXT NOT NULL DEFAULT '',
		message        TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_type_created_idx ON audit_events (type, created_at DESC)`,
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, call_id, destination_id, phone_hash, ip_address, outcome, reason, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Type), e.CallID, e.DestinationID, e.PhoneHash, e.IPAddress, e.Outcome, e.Reason, e.Message, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, call_id, destination_id, phone_hash, ip_address, outcome, reason, message, created_at
		FROM audit_events
		WHERE ($1 = '' OR type = $1) AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`,
		string(f.Type), f.Since, f.limit())
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.CallID, &e.DestinationID, &e.PhoneHash, &e.IPAddress, &e.Outcome, &e.Reason, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
