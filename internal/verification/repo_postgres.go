package verification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callbridge/internal/apperr"
	"callbridge/pkg/utils"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS verification_attempts (
		id           UUID PRIMARY KEY,
		phone_e164   TEXT NOT NULL,
		phone_hash   TEXT NOT NULL,
		calling_code INT NOT NULL,
		code_digest  TEXT NOT NULL,
		failures     INT NOT NULL DEFAULT 0,
		status       TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		expires_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS verification_attempts_created_idx ON verification_attempts (created_at)`,
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const attemptColumns = `id, phone_e164, phone_hash, calling_code, code_digest, failures, status, created_at, expires_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, a Attempt) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.PhoneE164, a.PhoneHash, a.CallingCode, a.CodeDigest, a.Failures, string(a.Status), a.CreatedAt, a.ExpiresAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("verification: create: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Attempt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM verification_attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

func (r *PostgresRepo) Update(ctx context.Context, id string, fn func(*Attempt) error) (Attempt, error) {
	var out Attempt
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM verification_attempts WHERE id = $1 FOR UPDATE`, id)
		a, err := scanAttempt(row)
		if err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE verification_attempts SET failures = $2, status = $3, updated_at = $4 WHERE id = $1`,
			a.ID, a.Failures, string(a.Status), a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("verification: update: %w", err)
		}
		out = a
		return nil
	})
	return out, err
}

func (r *PostgresRepo) Stats(ctx context.Context, since time.Time) (Stats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM verification_attempts WHERE created_at >= $1 GROUP BY status`, since)
	if err != nil {
		return Stats{}, fmt.Errorf("verification: stats: %w", err)
	}
	defer rows.Close()
	var s Stats
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return Stats{}, err
		}
		s.add(Status(st), n)
	}
	return s, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (Attempt, error) {
	var a Attempt
	var st string
	err := row.Scan(&a.ID, &a.PhoneE164, &a.PhoneHash, &a.CallingCode, &a.CodeDigest, &a.Failures, &st, &a.CreatedAt, &a.ExpiresAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, apperr.NotFound("verification attempt not found")
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("verification: scan: %w", err)
	}
	a.Status = Status(st)
	return a, nil
}
