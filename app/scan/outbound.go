package scan

import (
	"context"
	"log/slog"
	"sync"

	"regscanner/app/database"
)

// UsageQueue accumulates rule usage counts during a scan and flushes them in
// one pass at the end, so a slow or failing rule store never blocks filtering.
type UsageQueue struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewUsageQueue() *UsageQueue {
	return &UsageQueue{counts: make(map[string]int)}
}

func (q *UsageQueue) Add(ruleID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counts[ruleID]++
}

// Drain flushes all accumulated counts and resets the queue. Failed
// increments are logged and dropped; usage counters are advisory.
func (q *UsageQueue) Drain(ctx context.Context, rules database.RuleRepository) {
	q.mu.Lock()
	pending := q.counts
	q.counts = make(map[string]int)
	q.mu.Unlock()

	for ruleID, count := range pending {
		if err := rules.IncrementTimesApplied(ctx, ruleID, count); err != nil {
			slog.Warn("Failed to record rule usage", "rule_id", ruleID, "error", err)
		}
	}
}
