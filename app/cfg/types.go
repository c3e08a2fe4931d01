package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	Port          string
	SourcesDir    string
	ScanInterval  int
	FetchLimit    int
	EnrichLimit   int
	ClassifyLimit int
	RecentWindow  int
	MaxRetries    int
	FetchTimeout  int
	APIAccessKey  string

	// Classification collaborator
	ClassifyEndpoint string
	ClassifyModel    string
	ClassifyAPIKey   string
	CompanyContext   string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
