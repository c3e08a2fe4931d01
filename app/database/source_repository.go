package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"regscanner/app/sources"
)

// SourceRepo reads dynamic source configuration records. Selectors are stored
// as a JSON blob; rows with unparseable selectors keep the default chains.
type SourceRepo struct {
	db *DB
}

var _ SourceRepository = (*SourceRepo)(nil)

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

func (r *SourceRepo) GetActiveSources(ctx context.Context) ([]sources.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, url, type, region, selectors
		FROM sources
		WHERE is_active = 1
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sources: %w", err)
	}
	defer rows.Close()

	var result []sources.Source
	for rows.Next() {
		var s sources.Source
		var selectorsJSON string
		if err := rows.Scan(&s.ID, &s.Name, &s.URL, &s.Type, &s.Region, &selectorsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}

		if selectorsJSON != "" {
			var sel sources.Selectors
			if err := json.Unmarshal([]byte(selectorsJSON), &sel); err != nil {
				slog.Warn("Unparseable selectors for dynamic source", "source", s.Name, "error", err)
			} else {
				s.Selectors = &sel
			}
		}

		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return result, nil
}
