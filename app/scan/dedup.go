package scan

import (
	"context"
	"log/slog"

	"regscanner/app/database"
	"regscanner/app/feed"
)

// Deduplicator enforces the pipeline-wide uniqueness invariant: at most one
// item per normalized title and per normalized non-empty URL, checked within
// the batch and against a recent window of persisted records.
type Deduplicator struct {
	updates database.UpdateRepository
	window  int
}

func NewDeduplicator(updates database.UpdateRepository, window int) *Deduplicator {
	return &Deduplicator{updates: updates, window: window}
}

// Run returns the surviving items and the number removed. A failing store
// query degrades to batch-only dedup rather than failing the scan.
func (d *Deduplicator) Run(ctx context.Context, items []feed.Item) ([]feed.Item, int) {
	batchDeduped := dedupeBatch(items)

	knownTitles, knownURLs, err := d.loadRecent(ctx)
	if err != nil {
		slog.Warn("History dedup unavailable, keeping batch-deduped set", "error", err)
		return batchDeduped, len(items) - len(batchDeduped)
	}

	kept := make([]feed.Item, 0, len(batchDeduped))
	for _, item := range batchDeduped {
		if knownTitles[NormalizeTitle(item.Title)] {
			continue
		}
		if u := NormalizeURL(item.Link); u != "" && knownURLs[u] {
			continue
		}
		kept = append(kept, item)
	}

	return kept, len(items) - len(kept)
}

// dedupeBatch keeps the first occurrence per normalized title and,
// independently, per normalized non-empty URL.
func dedupeBatch(items []feed.Item) []feed.Item {
	seenTitles := make(map[string]bool)
	seenURLs := make(map[string]bool)

	kept := make([]feed.Item, 0, len(items))
	for _, item := range items {
		title := NormalizeTitle(item.Title)
		link := NormalizeURL(item.Link)

		if seenTitles[title] {
			continue
		}
		if link != "" && seenURLs[link] {
			continue
		}

		seenTitles[title] = true
		if link != "" {
			seenURLs[link] = true
		}
		kept = append(kept, item)
	}

	return kept
}

func (d *Deduplicator) loadRecent(ctx context.Context) (map[string]bool, map[string]bool, error) {
	recent, err := d.updates.GetRecent(ctx, d.window)
	if err != nil {
		return nil, nil, err
	}

	titles := make(map[string]bool, len(recent))
	urls := make(map[string]bool, len(recent))
	for _, u := range recent {
		if u.NormalizedTitle != "" {
			titles[u.NormalizedTitle] = true
		}
		if u.NormalizedURL != "" {
			urls[u.NormalizedURL] = true
		}
	}

	return titles, urls, nil
}
