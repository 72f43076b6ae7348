package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callbridge/internal/apperr"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS calls (
		id                  UUID PRIMARY KEY,
		kind                TEXT NOT NULL,
		state               TEXT NOT NULL,
		session_id          TEXT NOT NULL DEFAULT '',
		schedule_id         TEXT NOT NULL DEFAULT '',
		window_id           TEXT NOT NULL DEFAULT '',
		phone_hash          TEXT NOT NULL,
		calling_code        INT NOT NULL,
		user_region         TEXT NOT NULL DEFAULT '',
		destination_id      TEXT NOT NULL,
		destination_country TEXT NOT NULL DEFAULT '',
		user_leg_id         TEXT NOT NULL DEFAULT '',
		destination_leg_id  TEXT NOT NULL DEFAULT '',
		reason              TEXT NOT NULL DEFAULT '',
		created_at          TIMESTAMPTZ NOT NULL,
		updated_at          TIMESTAMPTZ NOT NULL,
		answered_at         TIMESTAMPTZ,
		bridged_at          TIMESTAMPTZ,
		ended_at            TIMESTAMPTZ,
		duration            INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS calls_created_idx ON calls (created_at)`,
}

const callColumns = `id, kind, state, session_id, schedule_id, window_id, phone_hash, calling_code, user_region,
	destination_id, destination_country, user_leg_id, destination_leg_id, reason,
	created_at, updated_at, answered_at, bridged_at, ended_at, duration`

// terminalStateList is used to refuse writes to finished rows.
var terminalStateList = func() []any {
	var out []any
	for _, s := range AllStates() {
		if s.Terminal() {
			out = append(out, string(s))
		}
	}
	return out
}()

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO calls (`+callColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		c.ID, string(c.Kind), string(c.State), c.SessionID, c.ScheduleID, c.WindowID, c.PhoneHash, c.CallingCode, c.UserRegion,
		c.DestinationID, c.DestinationCountry, c.UserLegID, c.DestinationLegID, c.Reason,
		c.CreatedAt, c.UpdatedAt, c.AnsweredAt, c.BridgedAt, c.EndedAt, c.DurationSeconds)
	if err != nil {
		return fmt.Errorf("calls: create: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Update(ctx context.Context, c Call) error {
	args := []any{
		c.ID, string(c.State), c.UserLegID, c.DestinationLegID, c.Reason,
		c.UpdatedAt, c.AnsweredAt, c.BridgedAt, c.EndedAt, c.DurationSeconds,
	}
	args = append(args, terminalStateList...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE calls SET state = $2, user_leg_id = $3, destination_leg_id = $4, reason = $5,
			updated_at = $6, answered_at = $7, bridged_at = $8, ended_at = $9, duration = $10
		WHERE id = $1 AND state NOT IN (`+placeholders(11, len(terminalStateList))+`)`, args...)
	if err != nil {
		return fmt.Errorf("calls: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("calls: update: %w", err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, c.ID); err != nil {
			return err
		}
		return apperr.Conflict("call %q already ended", c.ID)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Call, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id)
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, apperr.NotFound("call %q", id)
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Call, error) {
	var since, until any
	if !f.Since.IsZero() {
		since = f.Since
	}
	if !f.Until.IsZero() {
		until = f.Until
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+callColumns+` FROM calls
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3 = '' OR kind = $3)
		ORDER BY created_at, id
		LIMIT $4`, since, until, string(f.Kind), f.limit())
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	defer rows.Close()
	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c                        Call
		kind, state              string
		answered, bridged, ended sql.NullTime
	)
	err := row.Scan(&c.ID, &kind, &state, &c.SessionID, &c.ScheduleID, &c.WindowID, &c.PhoneHash, &c.CallingCode, &c.UserRegion,
		&c.DestinationID, &c.DestinationCountry, &c.UserLegID, &c.DestinationLegID, &c.Reason,
		&c.CreatedAt, &c.UpdatedAt, &answered, &bridged, &ended, &c.DurationSeconds)
	if err != nil {
		return Call{}, err
	}
	c.Kind = Kind(kind)
	c.State = State(state)
	c.AnsweredAt = nullTime(answered)
	c.BridgedAt = nullTime(bridged)
	c.EndedAt = nullTime(ended)
	return c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func placeholders(start, n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("$%d", start+i)
	}
	return s
}
