package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"callbridge/internal/apperr"
	"callbridge/pkg/utils"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS call_feedback (
		token              TEXT PRIMARY KEY,
		call_id            TEXT NOT NULL UNIQUE,
		destination_id     TEXT NOT NULL,
		phone_hash         TEXT NOT NULL,
		calling_code       INT NOT NULL,
		issued_at          TIMESTAMPTZ NOT NULL,
		expires_at         TIMESTAMPTZ NOT NULL,
		entered_at         TIMESTAMPTZ,
		convinced          TEXT,
		technical_problems BOOLEAN,
		additional         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS call_feedback_destination_idx ON call_feedback (destination_id)`,
	`CREATE INDEX IF NOT EXISTS call_feedback_entered_idx ON call_feedback (entered_at)`,
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const feedbackColumns = `token, call_id, destination_id, phone_hash, calling_code, issued_at, expires_at,
	entered_at, convinced, technical_problems, additional`

func (r *PostgresRepo) Create(ctx context.Context, f Feedback) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO call_feedback (token, call_id, destination_id, phone_hash, calling_code, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.Token, f.CallID, f.DestinationID, f.PhoneHash, f.CallingCode, f.IssuedAt, f.ExpiresAt)
	if err != nil {
		return fmt.Errorf("feedback: create: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, token string) (Feedback, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM call_feedback WHERE token = $1`, token)
	return scanFeedback(row)
}

func (r *PostgresRepo) ForCall(ctx context.Context, callID string) (Feedback, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM call_feedback WHERE call_id = $1`, callID)
	return scanFeedback(row)
}

func (r *PostgresRepo) Update(ctx context.Context, token string, fn func(*Feedback) error) (Feedback, error) {
	var out Feedback
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+feedbackColumns+` FROM call_feedback WHERE token = $1 FOR UPDATE`, token)
		f, err := scanFeedback(row)
		if err != nil {
			return err
		}
		if err := fn(&f); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE call_feedback SET entered_at = $2, convinced = $3, technical_problems = $4, additional = $5
			WHERE token = $1`,
			f.Token, f.EnteredAt, nullString(string(f.Convinced)), f.TechnicalProblems, nullString(f.Additional))
		if err != nil {
			return fmt.Errorf("feedback: update: %w", err)
		}
		out = f
		return nil
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeedback(row rowScanner) (Feedback, error) {
	var (
		f          Feedback
		entered    sql.NullTime
		convinced  sql.NullString
		technical  sql.NullBool
		additional sql.NullString
	)
	err := row.Scan(&f.Token, &f.CallID, &f.DestinationID, &f.PhoneHash, &f.CallingCode, &f.IssuedAt, &f.ExpiresAt,
		&entered, &convinced, &technical, &additional)
	if errors.Is(err, sql.ErrNoRows) {
		return Feedback{}, apperr.NotFound("feedback token not found")
	}
	if err != nil {
		return Feedback{}, fmt.Errorf("feedback: scan: %w", err)
	}
	if entered.Valid {
		t := entered.Time
		f.EnteredAt = &t
	}
	if technical.Valid {
		b := technical.Bool
		f.TechnicalProblems = &b
	}
	f.Convinced = Convinced(convinced.String)
	f.Additional = additional.String
	return f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
