package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"regscanner/app/classify"
	"regscanner/app/database"
	"regscanner/app/enrich"
	"regscanner/app/feed"
	"regscanner/app/fetcher"
	"regscanner/app/scrape"
	"regscanner/app/sources"
)

// Options select what a single scan covers.
type Options struct {
	// DateRangeDays bounds how far back published items are considered.
	DateRangeDays int
	// SelectedSourceIDs restricts the scan to matching source IDs or names.
	// Empty means all sources.
	SelectedSourceIDs []string
}

// SourceReport is the per-source outcome included in every scan report.
type SourceReport struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	Items   int    `json:"items"`
	Retries int    `json:"retries,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report summarizes one completed scan.
type Report struct {
	Fetched               int            `json:"fetched"`
	Duplicates            int            `json:"duplicates"`
	RuleFiltered          int            `json:"rule_filtered"`
	Classified            int            `json:"classified"`
	ClassificationSkipped int            `json:"classification_skipped"`
	Persisted             int            `json:"persisted"`
	Sources               []SourceReport `json:"sources"`
	Errors                []string       `json:"errors,omitempty"`
	ElapsedMS             int64          `json:"elapsed_ms"`
}

// Limits are the orchestrator's concurrency and batch bounds, plus the
// company context fed into classification prompts.
type Limits struct {
	FetchConcurrency int
	EnrichLimit      int
	ClassifyLimit    int
	RecentWindow     int
	CompanyContext   string
}

// Orchestrator drives a scan through its phases: collect sources, fetch and
// parse concurrently, deduplicate, enrich, record health, filter by rules,
// classify, and persist the surviving relevant items.
type Orchestrator struct {
	registry   *sources.Registry
	fetcher    *fetcher.Fetcher
	parser     *feed.Parser
	scraper    *scrape.Scraper
	enricher   *enrich.Enricher
	classifier classify.Classifier
	updates    database.UpdateRepository
	health     database.HealthRepository
	rules      database.RuleRepository
	limits     Limits
}

func NewOrchestrator(
	registry *sources.Registry,
	f *fetcher.Fetcher,
	parser *feed.Parser,
	scraper *scrape.Scraper,
	enricher *enrich.Enricher,
	classifier classify.Classifier,
	updates database.UpdateRepository,
	health database.HealthRepository,
	rules database.RuleRepository,
	limits Limits,
) *Orchestrator {
	if limits.FetchConcurrency <= 0 {
		limits.FetchConcurrency = 10
	}
	if limits.EnrichLimit <= 0 {
		limits.EnrichLimit = 15
	}
	if limits.ClassifyLimit <= 0 {
		limits.ClassifyLimit = 50
	}
	if limits.RecentWindow <= 0 {
		limits.RecentWindow = 500
	}
	return &Orchestrator{
		registry:   registry,
		fetcher:    f,
		parser:     parser,
		scraper:    scraper,
		enricher:   enricher,
		classifier: classifier,
		updates:    updates,
		health:     health,
		rules:      rules,
		limits:     limits,
	}
}

// sourceOutcome is the complete result of fetching one source, carried from
// the fan-out phase into health recording and the report.
type sourceOutcome struct {
	source  sources.Source
	items   []feed.Item
	retries int
	err     error
}

func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	started := time.Now()
	report := &Report{}

	if opts.DateRangeDays <= 0 {
		opts.DateRangeDays = 7
	}

	active, err := o.registry.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting sources: %w", err)
	}
	selected := sources.Filter(active, opts.SelectedSourceIDs)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no sources matched the selection")
	}

	slog.Info("Scan started", "sources", len(selected), "date_range_days", opts.DateRangeDays)

	outcomes := o.fetchAll(ctx, selected)

	cutoff := time.Now().AddDate(0, 0, -opts.DateRangeDays)
	var items []feed.Item
	for _, outcome := range outcomes {
		for _, item := range outcome.items {
			if !item.PubDate.IsZero() && item.PubDate.Before(cutoff) {
				continue
			}
			items = append(items, item)
		}
	}
	report.Fetched = len(items)

	deduper := NewDeduplicator(o.updates, o.limits.RecentWindow)
	items, removed := deduper.Run(ctx, items)
	report.Duplicates = removed

	items = o.enrichAll(ctx, items)

	o.recordHealth(ctx, outcomes, report)

	queue := NewUsageQueue()
	filter := NewRelevanceFilter(o.rules, queue)
	items, hints, filtered := filter.Run(ctx, items)
	report.RuleFiltered = filtered

	persisted, err := o.classifyAndPersist(ctx, items, hints, opts, report)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	}
	report.Persisted = persisted

	queue.Drain(ctx, o.rules)

	report.ElapsedMS = time.Since(started).Milliseconds()
	slog.Info("Scan finished",
		"fetched", report.Fetched,
		"duplicates", report.Duplicates,
		"rule_filtered", report.RuleFiltered,
		"classified", report.Classified,
		"persisted", report.Persisted,
		"elapsed_ms", report.ElapsedMS)

	return report, nil
}

// fetchAll fans out over the selected sources with bounded concurrency and
// collects every outcome; a failing source never aborts its siblings.
func (o *Orchestrator) fetchAll(ctx context.Context, selected []sources.Source) []sourceOutcome {
	outcomes := make([]sourceOutcome, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.limits.FetchConcurrency)
	for i, source := range selected {
		g.Go(func() error {
			outcomes[i] = o.fetchOne(gctx, source)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (o *Orchestrator) fetchOne(ctx context.Context, source sources.Source) sourceOutcome {
	outcome := sourceOutcome{source: source}

	switch source.Type {
	case sources.TypeScrape:
		result := o.scraper.Run(ctx, source)
		outcome.items, outcome.retries, outcome.err = result.Items, result.Retries, result.Err
	default:
		fetched, err := o.fetcher.Fetch(ctx, source.URL, map[string]string{
			"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml",
		})
		if err != nil {
			outcome.err = err
			break
		}
		outcome.retries = fetched.Attempts - 1
		outcome.items, outcome.err = o.parser.Run(fetched.Body, source.Name)
	}

	if outcome.err != nil {
		slog.Warn("Source fetch failed", "source", source.Name, "error", outcome.err)
	}
	return outcome
}

// enrichAll visits each item's page for full content, bounded to the first
// EnrichLimit items to keep scan latency predictable.
func (o *Orchestrator) enrichAll(ctx context.Context, items []feed.Item) []feed.Item {
	limit := o.limits.EnrichLimit
	if limit > len(items) {
		limit = len(items)
	}

	var wg sync.WaitGroup
	for i := 0; i < limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items[i] = o.enricher.Run(ctx, items[i])
		}()
	}
	wg.Wait()

	return items
}

// recordHealth upserts one telemetry row per scanned source. A fetch error
// marks the source failing; a clean fetch with zero items is degraded.
func (o *Orchestrator) recordHealth(ctx context.Context, outcomes []sourceOutcome, report *Report) {
	now := time.Now()
	for _, outcome := range outcomes {
		status := database.StatusHealthy
		errMsg := ""
		var lastSuccess *time.Time

		switch {
		case outcome.err != nil:
			status = database.StatusFailing
			errMsg = outcome.err.Error()
		case len(outcome.items) == 0:
			status = database.StatusDegraded
			lastSuccess = &now
		default:
			lastSuccess = &now
		}

		health := database.SourceHealth{
			SourceName:   outcome.source.Name,
			SourceURL:    outcome.source.URL,
			SourceType:   outcome.source.Type,
			Status:       status,
			LastCheck:    now,
			LastSuccess:  lastSuccess,
			ItemsFetched: len(outcome.items),
			ErrorMessage: errMsg,
			RetriesUsed:  outcome.retries,
		}
		if err := o.health.Upsert(ctx, health); err != nil {
			slog.Warn("Failed to record source health", "source", outcome.source.Name, "error", err)
		}

		sr := SourceReport{
			Name:    outcome.source.Name,
			URL:     outcome.source.URL,
			Type:    outcome.source.Type,
			Status:  status,
			Items:   len(outcome.items),
			Retries: outcome.retries,
			Error:   errMsg,
		}
		report.Sources = append(report.Sources, sr)
		if errMsg != "" {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", outcome.source.Name, errMsg))
		}
	}
}

// classifyAndPersist sends up to ClassifyLimit items through the classifier
// and persists the relevant results. Without a configured classifier every
// item is skipped and nothing is persisted.
func (o *Orchestrator) classifyAndPersist(ctx context.Context, items []feed.Item, hints []string, opts Options, report *Report) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if o.classifier == nil {
		report.ClassificationSkipped = len(items)
		slog.Warn("No classifier configured, skipping classification", "items", len(items))
		return 0, nil
	}

	batch := items
	if len(batch) > o.limits.ClassifyLimit {
		report.ClassificationSkipped = len(batch) - o.limits.ClassifyLimit
		batch = batch[:o.limits.ClassifyLimit]
	}

	results, err := o.classifier.Classify(ctx, classify.Request{
		Items:          batch,
		DateRangeDays:  opts.DateRangeDays,
		CompanyContext: o.limits.CompanyContext,
		IncludeHints:   hints,
	})
	if err != nil {
		return 0, fmt.Errorf("classification: %w", err)
	}
	report.Classified = len(results)

	o.analyzeDetails(ctx, batch, results)

	// persist in input order, not the order the model returned
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	persisted := 0
	seenTitles := make(map[string]bool)
	seenURLs := make(map[string]bool)
	for _, result := range results {
		if !result.Relevant || result.Index < 0 || result.Index >= len(batch) {
			continue
		}
		item := batch[result.Index]

		normalizedTitle := NormalizeTitle(item.Title)
		normalizedURL := NormalizeURL(item.Link)
		if seenTitles[normalizedTitle] || (normalizedURL != "" && seenURLs[normalizedURL]) {
			continue
		}

		exists, err := o.updates.Exists(ctx, normalizedTitle, normalizedURL)
		if err != nil {
			slog.Warn("Existence check failed, skipping item", "title", item.Title, "error", err)
			continue
		}
		if exists {
			continue
		}

		update := database.Update{
			Title:           item.Title,
			NormalizedTitle: normalizedTitle,
			Source:          item.Source,
			SourceURL:       item.Link,
			NormalizedURL:   normalizedURL,
			Domain:          result.Domain,
			Jurisdiction:    result.Jurisdiction,
			RiskScore:       result.RiskScore,
			UpdateType:      result.UpdateType,
			Summary:         result.Summary,
			FullContent:     item.FullContent,
		}
		if !item.PubDate.IsZero() {
			published := item.PubDate
			update.PublishedAt = &published
		}

		if err := o.updates.Create(ctx, update); err != nil {
			if isConflict(err) {
				continue
			}
			slog.Warn("Failed to persist update", "title", item.Title, "error", err)
			continue
		}

		seenTitles[normalizedTitle] = true
		if normalizedURL != "" {
			seenURLs[normalizedURL] = true
		}
		persisted++
	}

	return persisted, nil
}

// analyzeDetails runs the secondary deep analysis for enforcement actions and
// rulings concurrently and folds the expanded summaries back in.
func (o *Orchestrator) analyzeDetails(ctx context.Context, batch []feed.Item, results []classify.Result) {
	var wg sync.WaitGroup
	for i := range results {
		result := &results[i]
		if !result.Relevant || result.Index < 0 || result.Index >= len(batch) {
			continue
		}
		if result.UpdateType != "Ruling" && result.UpdateType != "Enforcement" {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			detail, err := o.classifier.AnalyzeDetail(ctx, batch[result.Index], *result)
			if err != nil {
				slog.Warn("Detail analysis failed", "title", batch[result.Index].Title, "error", err)
				return
			}
			if detail != "" {
				result.Summary = detail
			}
		}()
	}
	wg.Wait()
}

func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}
