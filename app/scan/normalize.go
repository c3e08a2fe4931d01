package scan

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var innerSpaceExpr = regexp.MustCompile(`\s+`)

// NormalizeTitle produces the canonical dedup key for a title: NFC-folded,
// lowercased, with inner whitespace collapsed.
func NormalizeTitle(title string) string {
	t := norm.NFC.String(title)
	t = strings.ToLower(strings.TrimSpace(t))
	return innerSpaceExpr.ReplaceAllString(t, " ")
}

// NormalizeURL canonicalizes a link for dedup purposes: scheme differences,
// trailing slashes, fragments, and utm_* tracking parameters do not make two
// URLs distinct. Only the host is case-folded; path and query keep their case
// since servers may treat them as case-sensitive. Unparseable input falls back
// to a trimmed string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}

	u.Fragment = ""
	u.Scheme = ""
	u.Host = strings.ToLower(u.Host)

	query := u.Query()
	for key := range query {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			query.Del(key)
		}
	}
	u.RawQuery = query.Encode()

	s := strings.TrimPrefix(u.String(), "//")
	return strings.TrimSuffix(s, "/")
}
