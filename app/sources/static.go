package sources

// staticSources are the compiled-in defaults. YAML files in the sources
// directory override entries by name; dynamic sources from the store are
// merged on top.
var staticSources = []Source{
	{
		Name:   "FTC Press Releases",
		URL:    "https://www.ftc.gov/feeds/press-release.xml",
		Type:   TypeRSS,
		Region: "US",
	},
	{
		Name:   "SEC Press Releases",
		URL:    "https://www.sec.gov/news/pressreleases.rss",
		Type:   TypeRSS,
		Region: "US",
	},
	{
		Name:   "SEC Litigation Releases",
		URL:    "https://www.sec.gov/rss/litigation/litreleases.xml",
		Type:   TypeRSS,
		Region: "US",
	},
	{
		Name:   "DOJ Antitrust Division",
		URL:    "https://www.justice.gov/feeds/atr/justice-news.xml",
		Type:   TypeRSS,
		Region: "US",
	},
	{
		Name:   "CFPB Newsroom",
		URL:    "https://www.consumerfinance.gov/about-us/newsroom/feed/",
		Type:   TypeRSS,
		Region: "US",
	},
	{
		Name:   "EU Commission Competition",
		URL:    "https://ec.europa.eu/commission/presscorner/api/rss?commissioner=competition",
		Type:   TypeRSS,
		Region: "EU",
	},
	{
		Name:   "UK CMA News",
		URL:    "https://www.gov.uk/government/organisations/competition-and-markets-authority.atom",
		Type:   TypeRSS,
		Region: "UK",
	},
	{
		Name:   "UK ICO News",
		URL:    "https://ico.org.uk/about-the-ico/media-centre/",
		Type:   TypeScrape,
		Region: "UK",
		Selectors: &Selectors{
			Item:    []string{".listing-item a", "article a"},
			Date:    ".listing-item__date",
			BaseURL: "https://ico.org.uk",
		},
	},
	{
		Name:   "FCC Headlines",
		URL:    "https://www.fcc.gov/news-events/headlines",
		Type:   TypeScrape,
		Region: "US",
		Selectors: &Selectors{
			Item:    []string{".views-row h3 a", ".views-row .title a"},
			Date:    ".views-row .date",
			BaseURL: "https://www.fcc.gov",
		},
	},
	{
		Name:   "State AG Monitor",
		URL:    "https://www.naag.org/press-releases/",
		Type:   TypeScrape,
		Region: "US",
		Selectors: &Selectors{
			ScriptRendered: true,
			TitleRegex:     `<a[^>]+href="(?P<link>[^"]*press-release[^"]*)"[^>]*>(?P<title>[^<]{15,})</a>`,
			BaseURL:        "https://www.naag.org",
		},
	},
}

// Static returns a copy of the compiled-in source list.
func Static() []Source {
	out := make([]Source, len(staticSources))
	copy(out, staticSources)
	return out
}
