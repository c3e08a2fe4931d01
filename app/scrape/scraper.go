package scrape

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"regscanner/app/feed"
	"regscanner/app/fetcher"
	"regscanner/app/sources"
)

const (
	// browserUserAgent is sent instead of the service agent; several
	// regulator sites serve bot agents an empty shell.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxDOMMatches   = 20
	maxRegexMatches = 15
	minTitleLen     = 15
	maxTitleLen     = 300
)

// defaultItemSelectors cover the common article/card/heading anchor patterns
// used when a source has no configured selector list.
var defaultItemSelectors = []string{
	"article h2 a[href]",
	"article h3 a[href]",
	"article a[href]",
	".news-item a[href]",
	".card a[href]",
	".views-row a[href]",
	"h2 a[href]",
	"h3 a[href]",
}

var titleStoplist = []string{"view all", "read more", "subscribe"}

// Result is the scraper's non-panicking boundary: total failure yields empty
// items with Err set; fetch-ok-but-nothing-extracted yields empty items and a
// nil Err, which the orchestrator reports as degraded rather than failing.
type Result struct {
	Items   []feed.Item
	Err     error
	Retries int
}

type Scraper struct {
	fetcher *fetcher.Fetcher
}

func NewScraper(f *fetcher.Fetcher) *Scraper {
	return &Scraper{fetcher: f}
}

func (s *Scraper) Run(ctx context.Context, source sources.Source) *Result {
	fetched, err := s.fetcher.Fetch(ctx, source.URL, map[string]string{
		"User-Agent": browserUserAgent,
		"Accept":     "text/html,application/xhtml+xml",
	})
	if err != nil {
		return &Result{Err: err}
	}

	result := &Result{Retries: fetched.Attempts - 1}

	if source.Selectors != nil && source.Selectors.ScriptRendered {
		result.Items = s.extractWithRegex(fetched.Body, source, maxDOMMatches)
		return result
	}

	items, domErr := s.extractWithDOM(fetched.Body, source)
	if domErr != nil {
		slog.Debug("DOM extraction failed, falling back to regex",
			"source", source.Name, "error", domErr)
		result.Items = s.extractWithRegex(fetched.Body, source, maxRegexMatches)
		return result
	}

	result.Items = items
	return result
}

func (s *Scraper) extractWithDOM(body []byte, source sources.Source) ([]feed.Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	itemSelectors := defaultItemSelectors
	if source.Selectors != nil && len(source.Selectors.Item) > 0 {
		itemSelectors = source.Selectors.Item
	}

	var selection *goquery.Selection
	for _, sel := range itemSelectors {
		found := doc.Find(sel)
		if found.Length() > 0 {
			selection = found
			break
		}
	}
	if selection == nil {
		return nil, nil
	}

	var items []feed.Item
	seen := make(map[string]bool)

	selection.EachWithBreak(func(i int, anchor *goquery.Selection) bool {
		if len(items) >= maxDOMMatches {
			return false
		}

		item, ok := s.extractItem(anchor, source)
		if !ok {
			return true
		}

		key := strings.ToLower(item.Title)
		if seen[key] {
			return true
		}
		seen[key] = true

		items = append(items, item)
		return true
	})

	return items, nil
}

func (s *Scraper) extractItem(anchor *goquery.Selection, source sources.Source) (feed.Item, bool) {
	sel := selectorsFor(source)

	container := anchor.Closest("article, li, .views-row, .card, .news-item, .listing-item")
	if container.Length() == 0 {
		container = anchor.Parent()
	}

	title := anchorTitle(anchor, container, sel.Title)
	if !titleOK(title) {
		return feed.Item{}, false
	}

	href, _ := anchor.Attr("href")
	if sel.Link != "" {
		if linked, exists := container.Find(sel.Link).First().Attr("href"); exists {
			href = linked
		}
	}
	link := absolutize(href, sel.BaseURL, source.URL)
	if link == "" {
		return feed.Item{}, false
	}

	item := feed.Item{
		Title:   title,
		Link:    link,
		Source:  source.Name,
		PubDate: extractDate(container, sel.Date),
	}

	if sel.Description != "" {
		item.Description = squeeze(container.Find(sel.Description).First().Text())
	}

	item.Author = extractAuthor(container, sel.Author)

	return item, true
}

func selectorsFor(source sources.Source) sources.Selectors {
	if source.Selectors != nil {
		return *source.Selectors
	}
	return sources.Selectors{}
}

func anchorTitle(anchor, container *goquery.Selection, titleSelector string) string {
	if titleSelector != "" {
		if t := squeeze(container.Find(titleSelector).First().Text()); t != "" {
			return t
		}
	}
	return squeeze(anchor.Text())
}

// extractDate probes the configured selector, then generic date markup, and
// settles for the current time as a last resort so downstream date-range
// checks never see a zero value from scraped pages.
func extractDate(container *goquery.Selection, dateSelector string) time.Time {
	probes := []string{dateSelector, "time", ".date", `[class*="date"]`}
	for _, probe := range probes {
		if probe == "" {
			continue
		}
		node := container.Find(probe).First()
		if node.Length() == 0 {
			continue
		}
		raw := squeeze(node.Text())
		if dt, exists := node.Attr("datetime"); exists {
			raw = dt
		}
		if raw == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(raw); err == nil {
			return parsed
		}
	}
	return time.Now().UTC()
}

func extractAuthor(container *goquery.Selection, authorSelector string) string {
	probes := []string{authorSelector, ".byline", ".author", `[rel="author"]`, `[class*="byline"]`}
	for _, probe := range probes {
		if probe == "" {
			continue
		}
		if a := squeeze(container.Find(probe).First().Text()); a != "" {
			return strings.TrimPrefix(a, "By ")
		}
	}
	return ""
}

var genericAnchorExpr = regexp.MustCompile(`(?is)<a[^>]+href=["'](?P<link>[^"']+)["'][^>]*>(?P<title>[^<]+)</a>`)

// extractWithRegex pulls title/link pairs straight out of raw HTML. It serves
// script-rendered sources, where the markup never materializes for a DOM
// parser, and acts as the fallback when DOM parsing fails.
func (s *Scraper) extractWithRegex(body []byte, source sources.Source, limit int) []feed.Item {
	expr := genericAnchorExpr
	if source.Selectors != nil && source.Selectors.TitleRegex != "" {
		compiled, err := regexp.Compile(source.Selectors.TitleRegex)
		if err != nil {
			slog.Warn("Invalid title regex for source, using generic pattern",
				"source", source.Name, "error", err)
		} else {
			expr = compiled
		}
	}

	linkIdx := expr.SubexpIndex("link")
	titleIdx := expr.SubexpIndex("title")
	if linkIdx < 0 || titleIdx < 0 {
		linkIdx, titleIdx = 1, 2
	}

	baseURL := source.URL
	if source.Selectors != nil && source.Selectors.BaseURL != "" {
		baseURL = source.Selectors.BaseURL
	}

	var items []feed.Item
	seen := make(map[string]bool)

	for _, match := range expr.FindAllStringSubmatch(string(body), -1) {
		if len(items) >= limit {
			break
		}
		if len(match) <= linkIdx || len(match) <= titleIdx {
			continue
		}

		title := squeeze(match[titleIdx])
		if !titleOK(title) {
			continue
		}

		key := strings.ToLower(title)
		if seen[key] {
			continue
		}
		seen[key] = true

		link := absolutize(match[linkIdx], baseURL, source.URL)
		if link == "" {
			continue
		}

		items = append(items, feed.Item{
			Title:   title,
			Link:    link,
			Source:  source.Name,
			PubDate: time.Now().UTC(),
		})
	}

	return items
}

func titleOK(title string) bool {
	if len(title) < minTitleLen || len(title) > maxTitleLen {
		return false
	}
	lower := strings.ToLower(title)
	for _, stop := range titleStoplist {
		if strings.Contains(lower, stop) {
			return false
		}
	}
	return true
}

// absolutize resolves href against the configured base URL, else the page's
// own origin. Unresolvable links are dropped.
func absolutize(href, baseURL, pageURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}

	base := baseURL
	if base == "" {
		base = pageURL
	}
	parsedBase, err := url.Parse(base)
	if err != nil || !parsedBase.IsAbs() {
		return ""
	}

	return parsedBase.ResolveReference(ref).String()
}

var squeezeExpr = regexp.MustCompile(`\s+`)

func squeeze(s string) string {
	return strings.TrimSpace(squeezeExpr.ReplaceAllString(s, " "))
}
