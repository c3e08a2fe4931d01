package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"regscanner/app/classify"
	"regscanner/app/database"
	"regscanner/app/enrich"
	"regscanner/app/feed"
	"regscanner/app/fetcher"
	"regscanner/app/scrape"
	"regscanner/app/sources"
)

type fakeHealthRepo struct {
	upserts []database.SourceHealth
}

func (r *fakeHealthRepo) Upsert(_ context.Context, health database.SourceHealth) error {
	r.upserts = append(r.upserts, health)
	return nil
}

func (r *fakeHealthRepo) Get(_ context.Context, sourceURL string) (*database.SourceHealth, error) {
	for i := range r.upserts {
		if r.upserts[i].SourceURL == sourceURL {
			return &r.upserts[i], nil
		}
	}
	return nil, nil
}

func (r *fakeHealthRepo) GetAll(_ context.Context) ([]database.SourceHealth, error) {
	return r.upserts, nil
}

func (r *fakeHealthRepo) statusFor(sourceURL string) string {
	for _, h := range r.upserts {
		if h.SourceURL == sourceURL {
			return h.Status
		}
	}
	return ""
}

// relevantClassifier marks every item relevant with fixed metadata.
type relevantClassifier struct {
	requests []classify.Request
}

func (c *relevantClassifier) Classify(_ context.Context, req classify.Request) ([]classify.Result, error) {
	c.requests = append(c.requests, req)
	results := make([]classify.Result, len(req.Items))
	for i := range req.Items {
		results[i] = classify.Result{
			Index:        i,
			Relevant:     true,
			Domain:       "Consumer Protection",
			Jurisdiction: "US",
			RiskScore:    6,
			UpdateType:   "Guidance",
			Summary:      "summary",
		}
	}
	return results, nil
}

func (c *relevantClassifier) AnalyzeDetail(_ context.Context, _ feed.Item, _ classify.Result) (string, error) {
	return "", nil
}

// feedServer serves an RSS feed at /feed with item links pointing back at
// itself, so enrichment fetches stay local. Non-feed paths return 404.
func feedServer(t *testing.T, titles ...string) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			http.NotFound(w, r)
			return
		}
		body := `<?xml version="1.0"?><rss version="2.0"><channel><title>Test</title>`
		for i, title := range titles {
			body += fmt.Sprintf(
				`<item><title>%s</title><link>%s/news/%d</link><pubDate>%s</pubDate></item>`,
				title, server.URL, i, time.Now().Format(time.RFC1123Z))
		}
		fmt.Fprint(w, body+`</channel></rss>`)
	}))
	t.Cleanup(server.Close)

	return server
}

func writeSourceFile(t *testing.T, dir, name, url, sourceType string) {
	t.Helper()
	content := fmt.Sprintf("name: %s\nurl: %s\ntype: %s\n", name, url, sourceType)
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write source file: %v", err)
	}
}

func newTestOrchestrator(dir string, updates database.UpdateRepository, health database.HealthRepository, rules database.RuleRepository, classifier classify.Classifier) *Orchestrator {
	f := fetcher.New("TestScanner/1.0", fetcher.WithMaxRetries(0), fetcher.WithTimeout(5*time.Second))
	return NewOrchestrator(
		sources.NewRegistry(dir, nil),
		f,
		feed.NewParser(),
		scrape.NewScraper(f),
		enrich.NewEnricher(f),
		classifier,
		updates,
		health,
		rules,
		Limits{},
	)
}

func TestScanDeduplicatesAcrossSourcesAndRuns(t *testing.T) {
	sharedTitle := "Agency Adopts Final Consumer Data Rule"

	serverA := feedServer(t, sharedTitle)
	serverB := feedServer(t, sharedTitle)

	dir := t.TempDir()
	writeSourceFile(t, dir, "source-a", serverA.URL+"/feed", "rss")
	writeSourceFile(t, dir, "source-b", serverB.URL+"/feed", "rss")

	updates := &fakeUpdateRepo{}
	health := &fakeHealthRepo{}
	rules := &fakeRuleRepo{}
	orch := newTestOrchestrator(dir, updates, health, rules, &relevantClassifier{})

	opts := Options{DateRangeDays: 7, SelectedSourceIDs: []string{"source-a", "source-b"}}

	report, err := orch.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if report.Fetched != 2 {
		t.Errorf("Expected 2 fetched, got %d", report.Fetched)
	}
	if report.Duplicates != 1 {
		t.Errorf("Expected 1 duplicate removed, got %d", report.Duplicates)
	}
	if report.Persisted != 1 {
		t.Errorf("Expected 1 persisted, got %d", report.Persisted)
	}
	if len(updates.created) != 1 {
		t.Fatalf("Expected 1 record created, got %d", len(updates.created))
	}
	if updates.created[0].NormalizedTitle != NormalizeTitle(sharedTitle) {
		t.Errorf("Unexpected normalized title: %q", updates.created[0].NormalizedTitle)
	}

	// Second run: history dedup removes everything.
	report, err = orch.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Second scan failed: %v", err)
	}
	if report.Persisted != 0 {
		t.Errorf("Expected 0 persisted on second run, got %d", report.Persisted)
	}
	if len(updates.created) != 1 {
		t.Errorf("Expected no new records on second run, got %d", len(updates.created))
	}
}

func TestScanRecordsSourceHealth(t *testing.T) {
	healthy := feedServer(t, "Healthy Source Headline Item")
	empty := feedServer(t)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer broken.Close()

	healthyURL := healthy.URL + "/feed"
	emptyURL := empty.URL + "/feed"

	dir := t.TempDir()
	writeSourceFile(t, dir, "healthy-src", healthyURL, "rss")
	writeSourceFile(t, dir, "empty-src", emptyURL, "rss")
	writeSourceFile(t, dir, "broken-src", broken.URL, "rss")

	healthRepo := &fakeHealthRepo{}
	orch := newTestOrchestrator(dir, &fakeUpdateRepo{}, healthRepo, &fakeRuleRepo{}, &relevantClassifier{})

	report, err := orch.Run(context.Background(), Options{
		DateRangeDays:     7,
		SelectedSourceIDs: []string{"healthy-src", "empty-src", "broken-src"},
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if got := healthRepo.statusFor(healthyURL); got != database.StatusHealthy {
		t.Errorf("Expected healthy status, got %q", got)
	}
	if got := healthRepo.statusFor(emptyURL); got != database.StatusDegraded {
		t.Errorf("Expected degraded status for empty source, got %q", got)
	}
	if got := healthRepo.statusFor(broken.URL); got != database.StatusFailing {
		t.Errorf("Expected failing status, got %q", got)
	}

	if len(report.Sources) != 3 {
		t.Errorf("Expected 3 source reports, got %d", len(report.Sources))
	}
	if len(report.Errors) == 0 {
		t.Errorf("Expected the broken source error in the report")
	}
}

func TestScanWithoutClassifierSkipsEverything(t *testing.T) {
	server := feedServer(t, "Headline One Entirely", "Headline Two Entirely")

	dir := t.TempDir()
	writeSourceFile(t, dir, "only-src", server.URL+"/feed", "rss")

	updates := &fakeUpdateRepo{}
	orch := newTestOrchestrator(dir, updates, &fakeHealthRepo{}, &fakeRuleRepo{}, nil)

	report, err := orch.Run(context.Background(), Options{
		DateRangeDays:     7,
		SelectedSourceIDs: []string{"only-src"},
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if report.ClassificationSkipped != 2 {
		t.Errorf("Expected 2 classification_skipped, got %d", report.ClassificationSkipped)
	}
	if report.Persisted != 0 || len(updates.created) != 0 {
		t.Errorf("Expected nothing persisted without a classifier")
	}
}

func TestScanDropsItemsOutsideDateRange(t *testing.T) {
	old := time.Now().AddDate(0, 0, -30).Format(time.RFC1123Z)
	recent := time.Now().Format(time.RFC1123Z)

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title>`+
			`<item><title>Old Regulatory Headline</title><link>%[1]s/old</link><pubDate>%[2]s</pubDate></item>`+
			`<item><title>Recent Regulatory Headline</title><link>%[1]s/recent</link><pubDate>%[3]s</pubDate></item>`+
			`</channel></rss>`, server.URL, old, recent)
	}))
	defer server.Close()

	dir := t.TempDir()
	writeSourceFile(t, dir, "dated-src", server.URL+"/feed", "rss")

	classifier := &relevantClassifier{}
	orch := newTestOrchestrator(dir, &fakeUpdateRepo{}, &fakeHealthRepo{}, &fakeRuleRepo{}, classifier)

	report, err := orch.Run(context.Background(), Options{
		DateRangeDays:     7,
		SelectedSourceIDs: []string{"dated-src"},
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if report.Fetched != 1 {
		t.Errorf("Expected 1 item inside the date range, got %d", report.Fetched)
	}
	if len(classifier.requests) != 1 || len(classifier.requests[0].Items) != 1 {
		t.Fatalf("Expected a single-item classification batch")
	}
	if classifier.requests[0].Items[0].Title != "Recent Regulatory Headline" {
		t.Errorf("Wrong item classified: %q", classifier.requests[0].Items[0].Title)
	}
}

func TestScanNoMatchingSources(t *testing.T) {
	orch := newTestOrchestrator(t.TempDir(), &fakeUpdateRepo{}, &fakeHealthRepo{}, &fakeRuleRepo{}, nil)

	_, err := orch.Run(context.Background(), Options{SelectedSourceIDs: []string{"does-not-exist"}})
	if err == nil {
		t.Errorf("Expected an error when no sources match")
	}
}
