package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callbridge/internal/apperr"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id             UUID PRIMARY KEY,
		phone_hash     TEXT NOT NULL UNIQUE,
		phone_e164     TEXT NOT NULL,
		calling_code   INT NOT NULL,
		region         TEXT NOT NULL DEFAULT '',
		timezone       TEXT NOT NULL,
		spans          JSONB NOT NULL,
		destination_id TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_attempts (
		schedule_id UUID NOT NULL,
		window_id   TEXT NOT NULL,
		call_id     TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (schedule_id, window_id)
	)`,
}

// PostgresRepo implements Repository and AttemptStore.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const scheduleColumns = `id, phone_hash, phone_e164, calling_code, region, timezone, spans, destination_id, created_at, updated_at`

func (r *PostgresRepo) Put(ctx context.Context, s Schedule) (Schedule, error) {
	spans, err := json.Marshal(s.Spans)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule: encode spans: %w", err)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (phone_hash) DO UPDATE SET
			phone_e164 = EXCLUDED.phone_e164,
			calling_code = EXCLUDED.calling_code,
			region = EXCLUDED.region,
			timezone = EXCLUDED.timezone,
			spans = EXCLUDED.spans,
			destination_id = EXCLUDED.destination_id,
			updated_at = EXCLUDED.updated_at
		RETURNING `+scheduleColumns,
		s.ID, s.PhoneHash, s.PhoneE164, s.CallingCode, s.Region, s.TimeZone, string(spans), s.DestinationID, s.CreatedAt, s.UpdatedAt)
	out, err := scanSchedule(row)
	if err != nil {
		return Schedule{}, fmt.Errorf("schedule: put: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) GetByPhone(ctx context.Context, phoneHash string) (Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE phone_hash = $1`, phoneHash)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, apperr.NotFound("no schedule")
	}
	return s, err
}

func (r *PostgresRepo) DeleteByPhone(ctx context.Context, phoneHash string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE phone_hash = $1`, phoneHash)
	if err != nil {
		return fmt.Errorf("schedule: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("no schedule")
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("schedule: list: %w", err)
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkAttempt(ctx context.Context, scheduleID, windowID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_attempts (schedule_id, window_id, outcome, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (schedule_id, window_id) DO NOTHING`, scheduleID, windowID, OutcomePending, at)
	if err != nil {
		return false, fmt.Errorf("schedule: mark attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("schedule: mark attempt: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepo) SetOutcome(ctx context.Context, scheduleID, windowID, callID, outcome string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedule_attempts
		SET call_id = CASE WHEN $3 = '' THEN call_id ELSE $3 END, outcome = $4, updated_at = $5
		WHERE schedule_id = $1 AND window_id = $2
		  AND ($4 <> 'started' OR outcome = 'pending')`, scheduleID, windowID, callID, outcome, at)
	if err != nil {
		return fmt.Errorf("schedule: set outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 && outcome != OutcomeStarted {
		return apperr.NotFound("attempt %s/%s", scheduleID, windowID)
	}
	return nil
}

func (r *PostgresRepo) ListAttempts(ctx context.Context, since time.Time) ([]Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT schedule_id, window_id, call_id, outcome, created_at, updated_at
		FROM schedule_attempts WHERE created_at >= $1 ORDER BY created_at`, since)
	if err != nil {
		return nil, fmt.Errorf("schedule: list attempts: %w", err)
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ScheduleID, &a.WindowID, &a.CallID, &a.Outcome, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (Schedule, error) {
	var (
		s     Schedule
		spans []byte
	)
	err := row.Scan(&s.ID, &s.PhoneHash, &s.PhoneE164, &s.CallingCode, &s.Region, &s.TimeZone, &spans, &s.DestinationID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Schedule{}, err
	}
	if err := json.Unmarshal(spans, &s.Spans); err != nil {
		return Schedule{}, fmt.Errorf("schedule: decode spans: %w", err)
	}
	return s, nil
}
