package database

import (
	"time"
)

// Update is the durable record the pipeline ultimately creates. No two rows
// share a normalized title or a non-empty normalized URL; the schema enforces
// both with unique indexes.
type Update struct {
	ID              string
	Title           string
	NormalizedTitle string
	Source          string
	SourceURL       string
	NormalizedURL   string
	Domain          string
	Jurisdiction    string
	RiskScore       float64
	UpdateType      string
	Summary         string
	FullContent     string
	PublishedAt     *time.Time
	ScannedAt       time.Time
	CreatedAt       time.Time
}

// Health statuses
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusFailing  = "failing"
)

// SourceHealth is per-source telemetry, one logical row per source keyed by
// source_url, upserted every scan and never deleted by this subsystem.
type SourceHealth struct {
	ID                  string
	SourceName          string
	SourceURL           string
	SourceType          string
	Status              string
	LastCheck           time.Time
	LastSuccess         *time.Time
	ItemsFetched        int
	ErrorMessage        string
	ConsecutiveFailures int
	RetriesUsed         int
}

// Relevance rule types
const (
	RuleIncludeKeyword       = "include_keyword"
	RuleIncludeTopic         = "include_topic"
	RuleExcludeKeyword       = "exclude_keyword"
	RuleExcludeTopic         = "exclude_topic"
	RuleExcludeTitlePattern  = "exclude_title_pattern"
	RuleExcludeSourcePattern = "exclude_source_pattern"
)

// RelevanceRule is created by a separate learning collaborator and consumed
// read-only here, except for fire-and-forget times_applied increments.
type RelevanceRule struct {
	ID                       string
	RuleType                 string
	Pattern                  string
	Domain                   string
	SourceName               string
	Reason                   string
	AccuracyScore            float64
	DerivedFromFeedbackCount int
	TimesApplied             int
	IsActive                 bool
	CreatedAt                time.Time
}
