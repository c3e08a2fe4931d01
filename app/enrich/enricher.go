package enrich

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"codeberg.org/readeck/go-readability"
	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"regscanner/app/feed"
	"regscanner/app/fetcher"
)

const (
	maxContentLen       = 8000
	minContainerTextLen = 300
	minParagraphLen     = 60
	minParagraphCount   = 3
	weakDescriptionLen  = 150
	descriptionPreview  = 300
)

// bodySelectors are probed in order; the first container with enough text wins.
var bodySelectors = []string{
	"article",
	`[role="main"]`,
	".post-content",
	".article-content",
	".entry-content",
	".article-body",
	"main",
}

var metaDateProbes = []string{
	`meta[property="article:published_time"]`,
	`meta[name="date"]`,
	`meta[name="pubdate"]`,
	`meta[name="publish_date"]`,
}

var metaAuthorProbes = []string{
	`meta[name="author"]`,
	`meta[property="article:author"]`,
}

// Enricher fetches an item's own page to extract a precise publish date, an
// author, and the main body text. Every failure is swallowed: the item is
// returned unchanged, never an error.
type Enricher struct {
	fetcher *fetcher.Fetcher
}

func NewEnricher(f *fetcher.Fetcher) *Enricher {
	return &Enricher{fetcher: f}
}

func (e *Enricher) Run(ctx context.Context, item feed.Item) feed.Item {
	if !isAbsolute(item.Link) {
		return item
	}

	fetched, err := e.fetcher.Fetch(ctx, item.Link, nil)
	if err != nil {
		slog.Debug("Enrichment fetch failed", "url", item.Link, "error", err)
		return item
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(fetched.Body))
	if err != nil {
		slog.Debug("Enrichment parse failed", "url", item.Link, "error", err)
		return item
	}

	if published := extractDate(doc); !published.IsZero() {
		item.PubDate = published
	}

	if item.Author == "" {
		item.Author = extractMetaAuthor(doc)
	}

	content := extractBody(doc, fetched.Body)
	if content == "" {
		return item
	}

	item.FullContent = clip(content, maxContentLen)

	if len(item.Description) < weakDescriptionLen {
		preview := content
		if len(preview) > descriptionPreview {
			preview = clip(preview, descriptionPreview) + "..."
		}
		item.Description = preview
	}

	return item
}

func isAbsolute(link string) bool {
	u, err := url.Parse(link)
	return err == nil && u.IsAbs() && u.Host != ""
}

// extractDate probes meta tags, then <time datetime>; first parseable match
// wins and overwrites the feed-provided date.
func extractDate(doc *goquery.Document) time.Time {
	raw, ok := extractDateString(doc)
	if !ok {
		return time.Time{}
	}
	if t, err := dateparse.ParseAny(raw); err == nil {
		return t
	}
	return time.Time{}
}

func extractDateString(doc *goquery.Document) (string, bool) {
	for _, probe := range metaDateProbes {
		if content, exists := doc.Find(probe).First().Attr("content"); exists && strings.TrimSpace(content) != "" {
			return strings.TrimSpace(content), true
		}
	}
	if dt, exists := doc.Find("time[datetime]").First().Attr("datetime"); exists && strings.TrimSpace(dt) != "" {
		return strings.TrimSpace(dt), true
	}
	return "", false
}

func extractMetaAuthor(doc *goquery.Document) string {
	for _, probe := range metaAuthorProbes {
		if content, exists := doc.Find(probe).First().Attr("content"); exists {
			if author := squeeze(content); author != "" {
				return author
			}
		}
	}
	for _, probe := range []string{".byline", ".author", `[rel="author"]`} {
		if author := squeeze(doc.Find(probe).First().Text()); author != "" {
			return strings.TrimPrefix(author, "By ")
		}
	}
	return ""
}

// extractBody walks the container selector chain, then falls back to
// concatenating substantial paragraphs, then to readability extraction.
func extractBody(doc *goquery.Document, raw []byte) string {
	for _, sel := range bodySelectors {
		text := squeeze(doc.Find(sel).First().Text())
		if len(text) > minContainerTextLen {
			return text
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(i int, p *goquery.Selection) {
		text := squeeze(p.Text())
		if len(text) > minParagraphLen {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) >= minParagraphCount {
		return strings.Join(paragraphs, " ")
	}

	article, err := readability.FromReader(bytes.NewReader(raw), nil)
	if err != nil {
		return ""
	}
	return squeeze(article.TextContent)
}

var squeezeExpr = regexp.MustCompile(`\s+`)

func squeeze(s string) string {
	return strings.TrimSpace(squeezeExpr.ReplaceAllString(s, " "))
}

// clip shortens s to at most limit bytes without splitting a UTF-8 sequence.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
