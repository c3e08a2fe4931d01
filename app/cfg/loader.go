package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./regscanner.db" description:"Path to the SQLite database file"`

	// Application configuration
	Port          string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	SourcesDir    string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	ScanInterval  int    `long:"scan-interval" env:"SCAN_INTERVAL" default:"3600" description:"Interval between scheduled scans in seconds (0 disables the scheduler)"`
	FetchLimit    int    `long:"fetch-limit" env:"FETCH_LIMIT" default:"10" description:"Maximum number of sources fetched concurrently"`
	EnrichLimit   int    `long:"enrich-limit" env:"ENRICH_LIMIT" default:"15" description:"Maximum number of items enriched per scan"`
	ClassifyLimit int    `long:"classify-limit" env:"CLASSIFY_LIMIT" default:"50" description:"Maximum number of items classified per scan"`
	RecentWindow  int    `long:"recent-window" env:"RECENT_WINDOW" default:"500" description:"Number of recent records loaded for deduplication"`
	MaxRetries    int    `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Maximum retry attempts per HTTP fetch"`
	FetchTimeout  int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"Per-attempt HTTP timeout in seconds"`
	APIAccessKey  string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Classification collaborator
	ClassifyEndpoint string `long:"classify-endpoint" env:"CLASSIFY_ENDPOINT" description:"OpenAI-compatible chat completions endpoint (empty disables classification)"`
	ClassifyModel    string `long:"classify-model" env:"CLASSIFY_MODEL" default:"gpt-4o-mini" description:"Model name for the classification call"`
	ClassifyAPIKey   string `long:"classify-api-key" env:"CLASSIFY_API_KEY" description:"API key for the classification endpoint"`
	CompanyContext   string `long:"company-context" env:"COMPANY_CONTEXT" description:"Company profile text fed into classification prompts (empty uses a generic default)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RegScanner/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		Port:             raw.Port,
		SourcesDir:       raw.SourcesDir,
		ScanInterval:     raw.ScanInterval,
		FetchLimit:       raw.FetchLimit,
		EnrichLimit:      raw.EnrichLimit,
		ClassifyLimit:    raw.ClassifyLimit,
		RecentWindow:     raw.RecentWindow,
		MaxRetries:       raw.MaxRetries,
		FetchTimeout:     raw.FetchTimeout,
		APIAccessKey:     raw.APIAccessKey,
		ClassifyEndpoint: raw.ClassifyEndpoint,
		ClassifyModel:    raw.ClassifyModel,
		ClassifyAPIKey:   raw.ClassifyAPIKey,
		CompanyContext:   raw.CompanyContext,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
