package database

import (
	"context"

	"regscanner/app/sources"
)

type UpdateRepository interface {
	// GetRecent returns the most recently scanned records, newest first,
	// bounded by limit. Used for the history deduplication window.
	GetRecent(ctx context.Context, limit int) ([]Update, error)
	// Exists reports whether a record with the given normalized title or
	// normalized non-empty URL is already persisted.
	Exists(ctx context.Context, normalizedTitle, normalizedURL string) (bool, error)
	Create(ctx context.Context, update Update) error
	Count(ctx context.Context) (int, error)
}

type HealthRepository interface {
	Upsert(ctx context.Context, health SourceHealth) error
	Get(ctx context.Context, sourceURL string) (*SourceHealth, error)
	GetAll(ctx context.Context) ([]SourceHealth, error)
}

type RuleRepository interface {
	GetActiveRules(ctx context.Context) ([]RelevanceRule, error)
	IncrementTimesApplied(ctx context.Context, ruleID string, count int) error
}

type SourceRepository interface {
	GetActiveSources(ctx context.Context) ([]sources.Source, error)
}
