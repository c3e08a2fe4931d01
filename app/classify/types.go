package classify

import (
	"context"

	"regscanner/app/feed"
)

// Update types the schema accepts.
var ValidUpdateTypes = []string{
	"Rule", "Ruling", "Enforcement", "Guidance", "Legislation", "Consultation", "Other",
}

// Request carries everything the prompt needs for one classification batch.
type Request struct {
	Items          []feed.Item
	DateRangeDays  int
	CompanyContext string
	// IncludeHints are learned inclusion rules surfaced as prioritization
	// hints inside the prompt, never as a hard filter.
	IncludeHints []string
}

// Result is one classified item, matched back to the request by Index.
type Result struct {
	Index        int     `json:"index"`
	Relevant     bool    `json:"relevant"`
	Domain       string  `json:"domain"`
	Jurisdiction string  `json:"jurisdiction"`
	RiskScore    float64 `json:"risk_score"`
	UpdateType   string  `json:"update_type"`
	Summary      string  `json:"summary"`
}

// Classifier is the opaque classification collaborator.
type Classifier interface {
	Classify(ctx context.Context, req Request) ([]Result, error)
	// AnalyzeDetail runs the secondary sub-analysis for Ruling/Enforcement
	// items, returning an expanded summary.
	AnalyzeDetail(ctx context.Context, item feed.Item, result Result) (string, error)
}
