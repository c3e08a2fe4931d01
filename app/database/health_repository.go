package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// HealthRepo handles per-source health telemetry. One row per source_url,
// upserted every scan; consecutive_failures increments only when the new
// status is failing and resets to zero otherwise.
type HealthRepo struct {
	db *DB
}

var _ HealthRepository = (*HealthRepo)(nil)

func NewHealthRepo(db *DB) *HealthRepo {
	return &HealthRepo{db: db}
}

func (r *HealthRepo) Upsert(ctx context.Context, health SourceHealth) error {
	if health.ID == "" {
		health.ID = uuid.NewString()
	}

	initialFailures := 0
	if health.Status == StatusFailing {
		initialFailures = 1
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_health (
			id, source_name, source_url, source_type, status, last_check,
			last_success, items_fetched, error_message, consecutive_failures,
			retries_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_url) DO UPDATE SET
			source_name = excluded.source_name,
			source_type = excluded.source_type,
			status = excluded.status,
			last_check = excluded.last_check,
			last_success = COALESCE(excluded.last_success, source_health.last_success),
			items_fetched = excluded.items_fetched,
			error_message = excluded.error_message,
			consecutive_failures = CASE
				WHEN excluded.status = 'failing' THEN source_health.consecutive_failures + 1
				ELSE 0
			END,
			retries_used = excluded.retries_used
	`, health.ID, health.SourceName, health.SourceURL, health.SourceType,
		health.Status, health.LastCheck, health.LastSuccess, health.ItemsFetched,
		health.ErrorMessage, initialFailures, health.RetriesUsed)

	if err != nil {
		return fmt.Errorf("failed to upsert source health: %w", err)
	}

	return nil
}

func (r *HealthRepo) Get(ctx context.Context, sourceURL string) (*SourceHealth, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_name, source_url, source_type, status, last_check,
		       last_success, items_fetched, error_message, consecutive_failures,
		       retries_used
		FROM source_health
		WHERE source_url = ?
	`, sourceURL)

	health, err := scanHealth(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source health: %w", err)
	}
	return health, nil
}

func (r *HealthRepo) GetAll(ctx context.Context) ([]SourceHealth, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_name, source_url, source_type, status, last_check,
		       last_success, items_fetched, error_message, consecutive_failures,
		       retries_used
		FROM source_health
		ORDER BY source_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get source health records: %w", err)
	}
	defer rows.Close()

	var records []SourceHealth
	for rows.Next() {
		health, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan health row: %w", err)
		}
		records = append(records, *health)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating health rows: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHealth(row rowScanner) (*SourceHealth, error) {
	var h SourceHealth
	var lastSuccess sql.NullTime
	err := row.Scan(
		&h.ID, &h.SourceName, &h.SourceURL, &h.SourceType, &h.Status,
		&h.LastCheck, &lastSuccess, &h.ItemsFetched, &h.ErrorMessage,
		&h.ConsecutiveFailures, &h.RetriesUsed,
	)
	if err != nil {
		return nil, err
	}
	if lastSuccess.Valid {
		h.LastSuccess = &lastSuccess.Time
	}
	return &h, nil
}
