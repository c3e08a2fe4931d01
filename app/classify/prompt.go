package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"regscanner/app/feed"
)

const defaultCompanyContext = "A multi-national company subject to competition, privacy, and consumer-protection regulation in the US, EU, and UK."

const responseSchema = `{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "index": {"type": "integer"},
          "relevant": {"type": "boolean"},
          "domain": {"type": "string"},
          "jurisdiction": {"type": "string"},
          "risk_score": {"type": "number", "minimum": 0, "maximum": 10},
          "update_type": {"type": "string", "enum": ["Rule", "Ruling", "Enforcement", "Guidance", "Legislation", "Consultation", "Other"]},
          "summary": {"type": "string"}
        },
        "required": ["index", "relevant", "jurisdiction", "risk_score", "update_type", "summary"]
      }
    }
  },
  "required": ["items"]
}`

const maxDigestContentLen = 500

// buildPrompt assembles the batch classification prompt: company context,
// learned prioritization hints, and a numbered item digest.
func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are a regulatory analyst. Classify each news item below for relevance to the company.\n\n")

	companyContext := req.CompanyContext
	if companyContext == "" {
		companyContext = defaultCompanyContext
	}
	b.WriteString("Company context:\n")
	b.WriteString(companyContext)
	b.WriteString("\n\n")

	if req.DateRangeDays > 0 {
		fmt.Fprintf(&b, "Only items from the last %d days matter; treat older items as not relevant.\n\n", req.DateRangeDays)
	}

	if len(req.IncludeHints) > 0 {
		b.WriteString("Prioritize items matching any of these learned patterns:\n")
		for _, hint := range req.IncludeHints {
			fmt.Fprintf(&b, "- %s\n", hint)
		}
		b.WriteString("\n")
	}

	b.WriteString("For each item return: index, relevant, domain, jurisdiction, risk_score (0-10), update_type, and a two-sentence summary.\n")
	b.WriteString("Respond with JSON matching this schema:\n")
	b.WriteString(responseSchema)
	b.WriteString("\n\nItems:\n")

	for i, item := range req.Items {
		fmt.Fprintf(&b, "\n[%d] %s\nSource: %s\nDate: %s\n", i, item.Title, item.Source, item.PubDate.Format("2006-01-02"))
		if item.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", truncate(item.Description, maxDigestContentLen))
		}
		if item.FullContent != "" {
			fmt.Fprintf(&b, "Content: %s\n", truncate(item.FullContent, maxDigestContentLen))
		}
	}

	return b.String()
}

// buildDetailPrompt drives the secondary sub-analysis for rulings and
// enforcement actions.
func buildDetailPrompt(item feed.Item, result Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The following %s was classified as relevant (risk %.1f, %s).\n\n",
		strings.ToLower(result.UpdateType), result.RiskScore, result.Jurisdiction)
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	if item.FullContent != "" {
		fmt.Fprintf(&b, "Content: %s\n", truncate(item.FullContent, 4000))
	} else if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}

	b.WriteString("\nExtract, where present: the penalty or remedy imposed, the effective or compliance date, ")
	b.WriteString("and the practical obligation created. Respond with a short plain-text paragraph; ")
	b.WriteString("say 'No additional detail available.' if the text contains none of these.")

	return b.String()
}

// truncate caps s at limit bytes, backing up so a multi-byte rune is never
// cut in half.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
