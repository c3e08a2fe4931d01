package scan

import (
	"context"
	"errors"
	"testing"

	"regscanner/app/database"
	"regscanner/app/feed"
)

type fakeRuleRepo struct {
	rules      []database.RelevanceRule
	rulesErr   error
	increments map[string]int
	incErr     error
}

func (r *fakeRuleRepo) GetActiveRules(_ context.Context) ([]database.RelevanceRule, error) {
	if r.rulesErr != nil {
		return nil, r.rulesErr
	}
	return r.rules, nil
}

func (r *fakeRuleRepo) IncrementTimesApplied(_ context.Context, ruleID string, count int) error {
	if r.incErr != nil {
		return r.incErr
	}
	if r.increments == nil {
		r.increments = make(map[string]int)
	}
	r.increments[ruleID] += count
	return nil
}

func TestRelevanceFilterExcludeKeywordMatchesTitleAndDescription(t *testing.T) {
	repo := &fakeRuleRepo{rules: []database.RelevanceRule{
		{ID: "r1", RuleType: database.RuleExcludeKeyword, Pattern: "webinar"},
	}}
	filter := NewRelevanceFilter(repo, NewUsageQueue())

	items := []feed.Item{
		{Title: "Upcoming Webinar: Compliance Basics"},
		{Title: "New Enforcement Action", Description: "Join our webinar to learn more"},
		{Title: "SEC Adopts Final Rule", Description: "Effective next quarter"},
	}

	kept, _, filtered := filter.Run(context.Background(), items)

	if len(kept) != 1 {
		t.Fatalf("Expected 1 item kept, got %d", len(kept))
	}
	if kept[0].Title != "SEC Adopts Final Rule" {
		t.Errorf("Wrong item survived: %q", kept[0].Title)
	}
	if filtered != 2 {
		t.Errorf("Expected 2 filtered, got %d", filtered)
	}
}

func TestRelevanceFilterKeywordDoesNotSpanFields(t *testing.T) {
	repo := &fakeRuleRepo{rules: []database.RelevanceRule{
		{ID: "r1", RuleType: database.RuleExcludeKeyword, Pattern: "grocery store"},
	}}
	filter := NewRelevanceFilter(repo, NewUsageQueue())

	items := []feed.Item{
		{Title: "Local Grocery", Description: "Store opens new location"},
		{Title: "Grocery store chain fined", Description: "Enforcement update"},
	}

	kept, _, filtered := filter.Run(context.Background(), items)

	if len(kept) != 1 || kept[0].Title != "Local Grocery" {
		t.Fatalf("Expected pattern to match within a single field only, kept %v", kept)
	}
	if filtered != 1 {
		t.Errorf("Expected 1 filtered, got %d", filtered)
	}
}

func TestRelevanceFilterTitlePatternIgnoresDescription(t *testing.T) {
	repo := &fakeRuleRepo{rules: []database.RelevanceRule{
		{ID: "r1", RuleType: database.RuleExcludeTitlePattern, Pattern: "press release"},
	}}
	filter := NewRelevanceFilter(repo, NewUsageQueue())

	items := []feed.Item{
		{Title: "Press Release: Quarterly Update"},
		{Title: "Enforcement Action", Description: "see the press release for details"},
	}

	kept, _, _ := filter.Run(context.Background(), items)

	if len(kept) != 1 || kept[0].Title != "Enforcement Action" {
		t.Errorf("Expected title-only matching, kept %v", kept)
	}
}

func TestRelevanceFilterSourcePattern(t *testing.T) {
	repo := &fakeRuleRepo{rules: []database.RelevanceRule{
		{ID: "r1", RuleType: database.RuleExcludeSourcePattern, Pattern: "newsletter"},
	}}
	filter := NewRelevanceFilter(repo, NewUsageQueue())

	items := []feed.Item{
		{Title: "Some headline long enough", Source: "Agency Newsletter Digest"},
		{Title: "Another headline entirely", Source: "FTC"},
	}

	kept, _, _ := filter.Run(context.Background(), items)

	if len(kept) != 1 || kept[0].Source != "FTC" {
		t.Errorf("Expected newsletter source filtered, kept %v", kept)
	}
}

func TestRelevanceFilterQueuesRuleUsage(t *testing.T) {
	repo := &fakeRuleRepo{rules: []database.RelevanceRule{
		{ID: "r1", RuleType: database.RuleExcludeKeyword, Pattern: "webinar"},
	}}
	queue := NewUsageQueue()
	filter := NewRelevanceFilter(repo, queue)

	items := []feed.Item{
		{Title: "Webinar one"},
		{Title: "Webinar two"},
	}
	filter.Run(context.Background(), items)

	queue.Drain(context.Background(), repo)

	if repo.increments["r1"] != 2 {
		t.Errorf("Expected rule r1 applied twice, got %d", repo.increments["r1"])
	}
}

func TestRelevanceFilterCollectsIncludeHints(t *testing.T) {
	repo := &fakeRuleRepo{rules: []database.RelevanceRule{
		{ID: "r1", RuleType: database.RuleIncludeKeyword, Pattern: "consumer lending"},
		{ID: "r2", RuleType: database.RuleIncludeTopic, Pattern: "data privacy"},
		{ID: "r3", RuleType: database.RuleIncludeKeyword, Pattern: "Consumer Lending"},
		{ID: "r4", RuleType: database.RuleExcludeKeyword, Pattern: "webinar"},
	}}
	filter := NewRelevanceFilter(repo, NewUsageQueue())

	_, hints, _ := filter.Run(context.Background(), []feed.Item{{Title: "Anything"}})

	if len(hints) != 2 {
		t.Fatalf("Expected 2 deduplicated hints, got %v", hints)
	}
	if hints[0] != "consumer lending" || hints[1] != "data privacy" {
		t.Errorf("Unexpected hints: %v", hints)
	}
}

func TestRelevanceFilterDegradesOnStoreFailure(t *testing.T) {
	repo := &fakeRuleRepo{rulesErr: errors.New("database locked")}
	filter := NewRelevanceFilter(repo, NewUsageQueue())

	items := []feed.Item{{Title: "Webinar announcement"}}
	kept, _, filtered := filter.Run(context.Background(), items)

	if len(kept) != 1 || filtered != 0 {
		t.Errorf("Expected pass-through on rule store failure, kept=%d filtered=%d", len(kept), filtered)
	}
}

func TestUsageQueueDrainResets(t *testing.T) {
	repo := &fakeRuleRepo{}
	queue := NewUsageQueue()
	queue.Add("r1")
	queue.Add("r1")

	queue.Drain(context.Background(), repo)
	queue.Drain(context.Background(), repo)

	if repo.increments["r1"] != 2 {
		t.Errorf("Expected a single flush of 2, got %d", repo.increments["r1"])
	}
}
