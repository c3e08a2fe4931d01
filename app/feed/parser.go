package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"
)

// Parser converts RSS 2.0, Atom, and RDF/RSS 1.0 payloads into Items. The
// structured path is gofeed, which normalizes all three dialects (including
// CDATA and #text node shapes and rel=alternate link preference). When the
// payload is malformed XML, a regex fallback scans for recognizable item
// blocks so technically invalid feeds still make forward progress.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte, sourceName string) ([]Item, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		slog.Debug("Structured feed parsing failed, using fallback extractor",
			"source", sourceName, "error", err)
		return p.fallback(data, sourceName)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		normalized := p.normalizeItem(item, sourceName)
		if normalized.Title == "" {
			continue
		}
		items = append(items, normalized)
	}

	if len(items) == 0 && len(parsed.Items) == 0 {
		// gofeed accepted the document but found nothing; the fallback may
		// still recognize tag structure gofeed rejected as item content.
		if fallbackItems, fbErr := p.fallback(data, sourceName); fbErr == nil && len(fallbackItems) > 0 {
			return fallbackItems, nil
		}
	}

	return items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, sourceName string) Item {
	normalized := Item{
		Title:       cleanText(item.Title),
		Link:        strings.TrimSpace(item.Link),
		Description: cleanText(firstNonEmpty(item.Description, item.Content)),
		Source:      sourceName,
	}

	if item.PublishedParsed != nil {
		normalized.PubDate = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PubDate = *item.UpdatedParsed
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		normalized.Author = strings.TrimSpace(item.Authors[0].Name)
	} else if item.Author != nil {
		normalized.Author = strings.TrimSpace(item.Author.Name)
	}

	return normalized
}

var (
	itemBlockExpr  = regexp.MustCompile(`(?is)<(?:item|entry)[\s>].*?</(?:item|entry)>`)
	titleExpr      = tagExpr("title")
	linkTagExpr    = tagExpr("link")
	linkHrefExpr   = regexp.MustCompile(`(?is)<link[^>]*href=["']([^"']+)["']`)
	descExpr       = tagExpr("description|summary")
	dateExpr       = tagExpr("pubDate|published|updated|dc:date")
	stripTagsExpr  = regexp.MustCompile(`<[^>]*>`)
	whitespaceExpr = regexp.MustCompile(`\s+`)
)

// tagExpr matches <tag>...</tag> with optional CDATA wrapping.
func tagExpr(names string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)<(?:` + names + `)[^>]*>\s*(?:<!\[CDATA\[)?(.*?)(?:\]\]>)?\s*</(?:` + names + `)>`)
}

// fallback extracts items from feeds gofeed cannot parse, by scanning raw
// <item> or <entry> blocks and pulling fields with per-tag regexes.
func (p *Parser) fallback(data []byte, sourceName string) ([]Item, error) {
	blocks := itemBlockExpr.FindAllString(string(data), -1)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("no recognizable item structure in feed from %s", sourceName)
	}

	items := make([]Item, 0, len(blocks))
	for _, block := range blocks {
		item := Item{
			Title:       extractTag(titleExpr, block),
			Link:        extractLink(block),
			Description: extractTag(descExpr, block),
			Source:      sourceName,
		}

		if item.Title == "" {
			continue
		}

		if raw := extractTag(dateExpr, block); raw != "" {
			if parsed, err := dateparse.ParseAny(raw); err == nil {
				item.PubDate = parsed
			}
		}

		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no titled items in feed from %s", sourceName)
	}

	slog.Debug("Fallback extractor recovered items", "source", sourceName, "count", len(items))
	return items, nil
}

func extractTag(expr *regexp.Regexp, block string) string {
	match := expr.FindStringSubmatch(block)
	if len(match) < 2 {
		return ""
	}
	return cleanText(match[1])
}

// extractLink handles both RSS <link>url</link> and Atom <link href="url"/>.
func extractLink(block string) string {
	if link := extractTag(linkTagExpr, block); link != "" {
		return link
	}
	match := linkHrefExpr.FindStringSubmatch(block)
	if len(match) < 2 {
		return ""
	}
	return strings.TrimSpace(match[1])
}

// cleanText strips markup and collapses whitespace, normalizing the plain
// string, {#text}, and {#cdata} shapes feeds use for text nodes.
func cleanText(s string) string {
	s = stripTagsExpr.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	return strings.TrimSpace(whitespaceExpr.ReplaceAllString(s, " "))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
