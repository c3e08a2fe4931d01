package scan

import (
	"context"
	"log/slog"
	"strings"

	"regscanner/app/database"
	"regscanner/app/feed"
)

// RelevanceFilter applies learned relevance rules before classification.
// Exclusion rules drop items outright; inclusion rules never drop anything
// and are instead surfaced as hints for the classification prompt.
type RelevanceFilter struct {
	rules    database.RuleRepository
	outbound *UsageQueue
}

func NewRelevanceFilter(rules database.RuleRepository, outbound *UsageQueue) *RelevanceFilter {
	return &RelevanceFilter{rules: rules, outbound: outbound}
}

// Run filters items against the active rules, highest accuracy first.
// Rule store failures degrade to a pass-through rather than failing the scan.
func (f *RelevanceFilter) Run(ctx context.Context, items []feed.Item) (kept []feed.Item, hints []string, filtered int) {
	active, err := f.rules.GetActiveRules(ctx)
	if err != nil {
		slog.Warn("Relevance rules unavailable, skipping rule filter", "error", err)
		return items, nil, 0
	}

	hints = collectHints(active)

	kept = make([]feed.Item, 0, len(items))
	for _, item := range items {
		if rule := matchExclusion(active, item); rule != nil {
			f.outbound.Add(rule.ID)
			filtered++
			continue
		}
		kept = append(kept, item)
	}

	return kept, hints, filtered
}

// matchExclusion returns the first exclusion rule the item matches, in the
// repository's accuracy order. Matching is case-insensitive substring against
// each field on its own; a pattern never matches across field boundaries.
func matchExclusion(rules []database.RelevanceRule, item feed.Item) *database.RelevanceRule {
	title := strings.ToLower(item.Title)
	description := strings.ToLower(item.Description)
	source := strings.ToLower(item.Source)

	for i := range rules {
		rule := &rules[i]
		pattern := strings.ToLower(rule.Pattern)
		if pattern == "" {
			continue
		}

		switch rule.RuleType {
		case database.RuleExcludeKeyword, database.RuleExcludeTopic:
			if strings.Contains(title, pattern) || strings.Contains(description, pattern) {
				return rule
			}
		case database.RuleExcludeTitlePattern:
			if strings.Contains(title, pattern) {
				return rule
			}
		case database.RuleExcludeSourcePattern:
			if strings.Contains(source, pattern) {
				return rule
			}
		}
	}

	return nil
}

func collectHints(rules []database.RelevanceRule) []string {
	var hints []string
	seen := make(map[string]bool)
	for _, rule := range rules {
		if rule.RuleType != database.RuleIncludeKeyword && rule.RuleType != database.RuleIncludeTopic {
			continue
		}
		hint := strings.TrimSpace(rule.Pattern)
		if hint == "" || seen[strings.ToLower(hint)] {
			continue
		}
		seen[strings.ToLower(hint)] = true
		hints = append(hints, hint)
	}
	return hints
}
