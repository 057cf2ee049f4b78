// Package config loads the immutable inputs of a crawl: credentials, keyword sets,
// the healthcare CPV set, platform endpoints, schedules and storage settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"tender-ingest/pkg/domain"
	"tender-ingest/pkg/logger"
	"tender-ingest/pkg/retry"
)

// Validation errors returned by Config.Validate.
var (
	ErrInvalidConcurrency = errors.New("crawl.max_concurrency must be at least 1")
	ErrInvalidTimeout     = errors.New("crawl.platform_timeout must be positive")
	ErrInvalidThreshold   = errors.New("relevance.threshold must be within [0, 1]")
	ErrEmptyCPVSet        = errors.New("relevance.healthcare_cpv must not be empty")
	ErrUnknownPlatform    = errors.New("unknown platform")
	ErrUnknownDriver      = errors.New("unknown storage driver")
	ErrMissingDSN         = errors.New("storage connection settings missing")
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
	DriverMongo    = "mongo"
)

// Config is the root configuration document.
type Config struct {
	Logging   logger.Config             `yaml:"logging"`
	Crawl     CrawlConfig               `yaml:"crawl"`
	Relevance RelevanceConfig           `yaml:"relevance"`
	Retry     retry.Policy              `yaml:"retry"`
	Storage   StorageConfig             `yaml:"storage"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

// CrawlConfig bounds a crawl run.
type CrawlConfig struct {
	MaxConcurrency  int           `yaml:"max_concurrency" env:"CRAWL_MAX_CONCURRENCY"`
	PlatformTimeout time.Duration `yaml:"platform_timeout" env:"CRAWL_PLATFORM_TIMEOUT"`
	// Keywords are sent to platforms that support server-side search.
	Keywords []string `yaml:"keywords" env:"CRAWL_KEYWORDS"`
}

// KeywordSet groups relevance keywords by language.
type KeywordSet struct {
	Language string   `yaml:"language"`
	Keywords []string `yaml:"keywords"`
}

// RelevanceConfig configures the healthcare relevance scorer.
type RelevanceConfig struct {
	Threshold     float64      `yaml:"threshold" env:"RELEVANCE_THRESHOLD"`
	HealthcareCPV []string     `yaml:"healthcare_cpv"`
	KeywordSets   []KeywordSet `yaml:"keyword_sets"`
}

// AllKeywords flattens the keyword sets in declaration order, dropping
// case-insensitive duplicates and blanks.
func (r RelevanceConfig) AllKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range r.KeywordSets {
		for _, kw := range set.Keywords {
			kw = strings.TrimSpace(kw)
			key := strings.ToLower(kw)
			if kw == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

// SupabaseConfig mirrors db.SupabaseConfig for YAML/env loading.
type SupabaseConfig struct {
	URL              string `yaml:"url" env:"SUPABASE_URL"`
	Key              string `yaml:"key" env:"SUPABASE_KEY"`
	Password         string `yaml:"password" env:"SUPABASE_DB_PASSWORD"`
	ConnectionString string `yaml:"connection_string" env:"SUPABASE_DB_URL"`
}

// MongoConfig configures the Mongo gateway.
type MongoConfig struct {
	URI                 string `yaml:"uri" env:"MONGO_URI"`
	Database            string `yaml:"database" env:"MONGO_DATABASE"`
	Collection          string `yaml:"collection"`
	WatermarkCollection string `yaml:"watermark_collection"`
}

// StorageConfig selects and configures the persistence gateway.
type StorageConfig struct {
	Driver       string         `yaml:"driver" env:"STORAGE_DRIVER"`
	PostgresDSN  string         `yaml:"postgres_dsn" env:"DATABASE_URL"`
	Supabase     SupabaseConfig `yaml:"supabase"`
	Mongo        MongoConfig    `yaml:"mongo"`
	MaxOpenConns int            `yaml:"max_open_conns"`
	MaxIdleConns int            `yaml:"max_idle_conns"`
	ConnMaxLife  time.Duration  `yaml:"conn_max_life"`
}

// RateLimit is a token bucket: RPS requests per second with Burst tokens.
type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ScrapeSelectors are goquery selectors for a listing page.
// Field selectors are relative to Item.
type ScrapeSelectors struct {
	Item         string `yaml:"item"`
	Title        string `yaml:"title"`
	Link         string `yaml:"link"`
	ID           string `yaml:"id"`
	Organization string `yaml:"organization"`
	Published    string `yaml:"published"`
	Deadline     string `yaml:"deadline"`
	Description  string `yaml:"description"`
}

// PlatformConfig configures one source adapter. Zero fields fall back to the
// platform defaults, so a YAML entry only has to name what it changes.
type PlatformConfig struct {
	Disabled  bool   `yaml:"disabled"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`

	RateLimit      RateLimit     `yaml:"rate_limit"`
	Retry          retry.Policy  `yaml:"retry"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PageSize       int           `yaml:"page_size"`
	MaxPages       int           `yaml:"max_pages"`
	// LookbackWindow bounds the first run of a platform that has no watermark yet.
	LookbackWindow time.Duration `yaml:"lookback_window"`
	Schedules      []string      `yaml:"schedules"`

	// Operations lists API operations to query (G2B bid-notice categories).
	Operations []string `yaml:"operations"`
	// FeedURLs are RSS/Atom feeds read by the feed adapter.
	FeedURLs []string `yaml:"feed_urls"`
	// ListingURLs are HTML search/listing pages read by the scrape adapter.
	ListingURLs []string        `yaml:"listing_urls"`
	Selectors   ScrapeSelectors `yaml:"selectors"`
	// ScrapeFallback wraps the primary adapter with a feed or listing adapter
	// that is read when the primary fails or returns nothing. Nil means unset.
	ScrapeFallback *bool `yaml:"scrape_fallback"`
	// FetchDetails loads each scraped notice page to extract a description.
	FetchDetails *bool `yaml:"fetch_details"`
}

// Bool returns a pointer to v for the optional switches of PlatformConfig.
func Bool(v bool) *bool { return &v }

// UsesScrapeFallback reports whether ScrapeFallback is set to true.
func (p PlatformConfig) UsesScrapeFallback() bool {
	return p.ScrapeFallback != nil && *p.ScrapeFallback
}

// UsesFetchDetails reports whether FetchDetails is set to true.
func (p PlatformConfig) UsesFetchDetails() bool {
	return p.FetchDetails != nil && *p.FetchDetails
}

// Default returns a complete configuration that runs against the public endpoints
// with an in-memory store.
func Default() *Config {
	platforms := make(map[string]PlatformConfig, len(defaultPlatforms))
	for site, p := range defaultPlatforms {
		platforms[string(site)] = p
	}
	return &Config{
		Logging: logger.Config{Level: "info", Format: "json"},
		Crawl: CrawlConfig{
			MaxConcurrency:  4,
			PlatformTimeout: 10 * time.Minute,
			Keywords:        []string{"PCR", "diagnostic", "진단키트"},
		},
		Relevance: RelevanceConfig{
			Threshold:     0.3,
			HealthcareCPV: append([]string(nil), defaultHealthcareCPV...),
			KeywordSets:   defaultKeywordSets(),
		},
		Retry: retry.DefaultPolicy(),
		Storage: StorageConfig{
			Driver: DriverMemory,
			Mongo: MongoConfig{
				Database:            "tenders",
				Collection:          "tender_notices",
				WatermarkCollection: "crawl_watermarks",
			},
		},
		Platforms: platforms,
	}
}

// Platform returns the effective configuration for site: the configured entry
// merged over the platform defaults, with the API key resolved from the environment.
func (c *Config) Platform(site domain.SourceSite) PlatformConfig {
	p := c.Platforms[string(site)]
	p = p.merge(defaultPlatforms[site])
	p.Retry = p.Retry.Merge(c.Retry)
	if p.APIKey == "" && p.APIKeyEnv != "" {
		p.APIKey = os.Getenv(p.APIKeyEnv)
	}
	return p
}

// EnabledSites lists the platforms not disabled in config, in stable order.
func (c *Config) EnabledSites() []domain.SourceSite {
	var sites []domain.SourceSite
	for _, site := range domain.AllSites() {
		if !c.Platform(site).Disabled {
			sites = append(sites, site)
		}
	}
	return sites
}

func (p PlatformConfig) merge(def PlatformConfig) PlatformConfig {
	if p.BaseURL == "" {
		p.BaseURL = def.BaseURL
	}
	if p.APIKeyEnv == "" {
		p.APIKeyEnv = def.APIKeyEnv
	}
	if p.RateLimit.RPS == 0 {
		p.RateLimit = def.RateLimit
	}
	p.Retry = p.Retry.Merge(def.Retry)
	if p.RequestTimeout == 0 {
		p.RequestTimeout = def.RequestTimeout
	}
	if p.PageSize == 0 {
		p.PageSize = def.PageSize
	}
	if p.MaxPages == 0 {
		p.MaxPages = def.MaxPages
	}
	if p.LookbackWindow == 0 {
		p.LookbackWindow = def.LookbackWindow
	}
	if len(p.Schedules) == 0 {
		p.Schedules = def.Schedules
	}
	if len(p.Operations) == 0 {
		p.Operations = def.Operations
	}
	if len(p.FeedURLs) == 0 {
		p.FeedURLs = def.FeedURLs
	}
	if len(p.ListingURLs) == 0 {
		p.ListingURLs = def.ListingURLs
	}
	if p.Selectors == (ScrapeSelectors{}) {
		p.Selectors = def.Selectors
	}
	if p.ScrapeFallback == nil {
		p.ScrapeFallback = def.ScrapeFallback
	}
	if p.FetchDetails == nil {
		p.FetchDetails = def.FetchDetails
	}
	return p
}

// Validate checks the configuration for values no run could work with.
func (c *Config) Validate() error {
	if c.Crawl.MaxConcurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Crawl.PlatformTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Relevance.Threshold < 0 || c.Relevance.Threshold > 1 {
		return ErrInvalidThreshold
	}
	if len(c.Relevance.HealthcareCPV) == 0 {
		return ErrEmptyCPVSet
	}
	for name := range c.Platforms {
		if !domain.SourceSite(name).Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownPlatform, name)
		}
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn", ErrMissingDSN)
		}
	case DriverSupabase:
		s := c.Storage.Supabase
		if s.ConnectionString == "" && (s.URL == "" || (s.Password == "" && s.Key == "")) {
			return fmt.Errorf("%w: supabase connection_string, url+password or url+key", ErrMissingDSN)
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("%w: mongo.uri", ErrMissingDSN)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}
	return nil
}
