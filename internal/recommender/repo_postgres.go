package recommender

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"callbridge/internal/apperr"
	"callbridge/pkg/utils"
)

var Schema = []string{
	`CREATE TABLE IF NOT EXISTS destinations (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		country           TEXT NOT NULL,
		phone             TEXT NOT NULL,
		swayability       DOUBLE PRECISION NOT NULL DEFAULT 0,
		suggested_count   BIGINT NOT NULL DEFAULT 0,
		last_suggested_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS destinations_country_idx ON destinations (country)`,
	`CREATE TABLE IF NOT EXISTS destination_selection_log (
		id             UUID PRIMARY KEY,
		destination_id TEXT NOT NULL REFERENCES destinations (id),
		kind           TEXT NOT NULL,
		session_id     TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const destinationColumns = `id, name, country, phone, swayability, suggested_count, last_suggested_at`

func (r *PostgresRepo) List(ctx context.Context, country string) ([]Destination, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+destinationColumns+` FROM destinations
		WHERE $1 = '' OR country = $1
		ORDER BY id`, country)
	if err != nil {
		return nil, fmt.Errorf("recommender: list: %w", err)
	}
	defer rows.Close()
	var out []Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Destination, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+destinationColumns+` FROM destinations WHERE id = $1`, id)
	d, err := scanDestination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Destination{}, apperr.NotFound("destination %q not found", id)
	}
	return d, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (r *PostgresRepo) Search(ctx context.Context, q SearchQuery) ([]Destination, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = MaxSearchResults
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+destinationColumns+` FROM destinations
		WHERE name ILIKE $1 AND ($2 OR country = $3)
		ORDER BY (country = $3) DESC, name, id
		LIMIT $4`, "%"+likeEscaper.Replace(q.Name)+"%", q.AllCountries, q.Country, limit)
	if err != nil {
		return nil, fmt.Errorf("recommender: search: %w", err)
	}
	defer rows.Close()
	var out []Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) RecordSelection(ctx context.Context, e SelectionEvent) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO destination_selection_log (id, destination_id, kind, session_id, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.DestinationID, string(e.Kind), e.SessionID, e.CreatedAt); err != nil {
			return fmt.Errorf("recommender: log selection: %w", err)
		}
		if e.Kind != SelectionSuggested {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE destinations SET suggested_count = suggested_count + 1, last_suggested_at = $2
			WHERE id = $1`, e.DestinationID, e.CreatedAt); err != nil {
			return fmt.Errorf("recommender: bump counters: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDestination(row rowScanner) (Destination, error) {
	var d Destination
	var last sql.NullTime
	if err := row.Scan(&d.ID, &d.Name, &d.Country, &d.Phone, &d.Swayability, &d.SuggestedCount, &last); err != nil {
		return Destination{}, err
	}
	if last.Valid {
		d.LastSuggestedAt = last.Time
	}
	return d, nil
}
