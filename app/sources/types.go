package sources

const (
	TypeRSS    = "rss"
	TypeScrape = "scrape"
)

// Selectors configures HTML extraction for scrape sources. Zero values fall
// back to the generic probe chains in the scraper.
type Selectors struct {
	Item        []string `yaml:"item" json:"item"`
	Title       string   `yaml:"title" json:"title"`
	Link        string   `yaml:"link" json:"link"`
	Date        string   `yaml:"date" json:"date"`
	Description string   `yaml:"description" json:"description"`
	Author      string   `yaml:"author" json:"author"`
	BaseURL     string   `yaml:"base_url" json:"base_url"`

	// TitleRegex drives regex-only extraction for script-rendered pages.
	TitleRegex     string `yaml:"title_regex" json:"title_regex"`
	ScriptRendered bool   `yaml:"script_rendered" json:"script_rendered"`
}

// Source is one configured origin of articles, immutable for the duration of
// a scan. Identity is Name for static sources and the store-assigned ID for
// dynamic ones.
type Source struct {
	ID        string     `yaml:"-"`
	Name      string     `yaml:"name"`
	URL       string     `yaml:"url"`
	Type      string     `yaml:"type"`
	Region    string     `yaml:"region"`
	Selectors *Selectors `yaml:"selectors"`
}
