package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpdateRepo handles database operations for persisted regulatory updates.
type UpdateRepo struct {
	db *DB
}

var _ UpdateRepository = (*UpdateRepo)(nil)

func NewUpdateRepo(db *DB) *UpdateRepo {
	return &UpdateRepo{db: db}
}

func (r *UpdateRepo) GetRecent(ctx context.Context, limit int) ([]Update, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, normalized_title, source, source_url, normalized_url,
		       domain, jurisdiction, risk_score, update_type, summary,
		       full_content, published_at, scanned_at, created_at
		FROM updates
		ORDER BY scanned_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent updates: %w", err)
	}
	defer rows.Close()

	var updates []Update
	for rows.Next() {
		var u Update
		var publishedAt sql.NullTime
		err := rows.Scan(
			&u.ID, &u.Title, &u.NormalizedTitle, &u.Source, &u.SourceURL,
			&u.NormalizedURL, &u.Domain, &u.Jurisdiction, &u.RiskScore,
			&u.UpdateType, &u.Summary, &u.FullContent, &publishedAt,
			&u.ScannedAt, &u.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan update row: %w", err)
		}
		if publishedAt.Valid {
			u.PublishedAt = &publishedAt.Time
		}
		updates = append(updates, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating update rows: %w", err)
	}

	return updates, nil
}

func (r *UpdateRepo) Exists(ctx context.Context, normalizedTitle, normalizedURL string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM updates
		WHERE normalized_title = ?
		   OR (normalized_url <> '' AND normalized_url = ?)
		LIMIT 1
	`, normalizedTitle, normalizedURL).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing update: %w", err)
	}
	return true, nil
}

func (r *UpdateRepo) Create(ctx context.Context, update Update) error {
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	if update.ScannedAt.IsZero() {
		update.ScannedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO updates (
			id, title, normalized_title, source, source_url, normalized_url,
			domain, jurisdiction, risk_score, update_type, summary,
			full_content, published_at, scanned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, update.ID, update.Title, update.NormalizedTitle, update.Source,
		update.SourceURL, update.NormalizedURL, update.Domain,
		update.Jurisdiction, update.RiskScore, update.UpdateType,
		update.Summary, update.FullContent, update.PublishedAt, update.ScannedAt)

	if err != nil {
		return fmt.Errorf("failed to create update: %w", err)
	}

	return nil
}

func (r *UpdateRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM updates").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count updates: %w", err)
	}
	return count, nil
}
