package database

import (
	"context"
	"fmt"
)

// RuleRepo reads learned relevance rules and records their usage counts.
type RuleRepo struct {
	db *DB
}

var _ RuleRepository = (*RuleRepo)(nil)

func NewRuleRepo(db *DB) *RuleRepo {
	return &RuleRepo{db: db}
}

func (r *RuleRepo) GetActiveRules(ctx context.Context) ([]RelevanceRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rule_type, pattern, domain, source_name, reason,
		       accuracy_score, derived_from_feedback_count, times_applied,
		       is_active, created_at
		FROM relevance_rules
		WHERE is_active = 1
		ORDER BY accuracy_score DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer rows.Close()

	var rules []RelevanceRule
	for rows.Next() {
		var rule RelevanceRule
		err := rows.Scan(
			&rule.ID, &rule.RuleType, &rule.Pattern, &rule.Domain,
			&rule.SourceName, &rule.Reason, &rule.AccuracyScore,
			&rule.DerivedFromFeedbackCount, &rule.TimesApplied,
			&rule.IsActive, &rule.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}

	return rules, nil
}

func (r *RuleRepo) IncrementTimesApplied(ctx context.Context, ruleID string, count int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE relevance_rules
		SET times_applied = times_applied + ?
		WHERE id = ?
	`, count, ruleID)
	if err != nil {
		return fmt.Errorf("failed to increment rule usage: %w", err)
	}
	return nil
}
