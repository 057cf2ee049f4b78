package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tender-ingest/pkg/config"
	"tender-ingest/pkg/domain"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.3, cfg.Relevance.Threshold)
	assert.Contains(t, cfg.Relevance.HealthcareCPV, "33696000")
	assert.Len(t, cfg.EnabledSites(), len(domain.AllSites()))
}

func TestAllKeywords_DedupesCaseInsensitively(t *testing.T) {
	r := config.RelevanceConfig{KeywordSets: []config.KeywordSet{
		{Language: "ko", Keywords: []string{"PCR", "진단키트"}},
		{Language: "en", Keywords: []string{"pcr", " ", "assay"}},
	}}

	assert.Equal(t, []string{"PCR", "진단키트", "assay"}, r.AllKeywords())
}

func TestLoad_YAMLOverridesAndPlatformMerge(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := writeFile(t, `
crawl:
  max_concurrency: 2
  platform_timeout: 90s
platforms:
  SAM_GOV:
    api_key: from-file
    page_size: 25
  IT_MEPA:
    disabled: true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Crawl.MaxConcurrency)
	assert.Equal(t, 90*time.Second, cfg.Crawl.PlatformTimeout)

	sam := cfg.Platform(domain.SiteSAMGov)
	assert.Equal(t, "from-file", sam.APIKey)
	assert.Equal(t, 25, sam.PageSize)
	assert.Equal(t, "https://api.sam.gov/opportunities/v2/search", sam.BaseURL)
	assert.Equal(t, 3, sam.Retry.MaxAttempts)

	assert.NotContains(t, cfg.EnabledSites(), domain.SiteITMEPA)
}

func TestLoad_YAMLCanTurnOffDefaultSwitches(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := writeFile(t, `
platforms:
  DE_VERGABE:
    scrape_fallback: false
    fetch_details: false
  TENDERNED:
    page_size: 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	de := cfg.Platform(domain.SiteDEVergabe)
	assert.False(t, de.UsesScrapeFallback())
	assert.False(t, de.UsesFetchDetails())

	nl := cfg.Platform(domain.SiteTenderNed)
	assert.True(t, nl.UsesScrapeFallback(), "unset keeps the default")
	assert.True(t, cfg.Platform(domain.SiteITMEPA).UsesFetchDetails())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CRAWL_MAX_CONCURRENCY", "8")
	t.Setenv("RELEVANCE_THRESHOLD", "0.5")
	t.Setenv("CRAWL_KEYWORDS", "PCR, reagent")
	t.Setenv("G2B_API_KEY", "service-key")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Crawl.MaxConcurrency)
	assert.Equal(t, 0.5, cfg.Relevance.Threshold)
	assert.Equal(t, []string{"PCR", "reagent"}, cfg.Crawl.Keywords)
	assert.Equal(t, "service-key", cfg.Platform(domain.SiteG2B).APIKey)
}

func TestLoad_EnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SAMGOV_API_KEY=dotenv-key\n"), 0o600))
	t.Setenv("ENV_FILE", envPath)
	t.Setenv("SAMGOV_API_KEY", "")
	require.NoError(t, os.Unsetenv("SAMGOV_API_KEY"))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.Platform(domain.SiteSAMGov).APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"concurrency", func(c *config.Config) { c.Crawl.MaxConcurrency = 0 }, config.ErrInvalidConcurrency},
		{"timeout", func(c *config.Config) { c.Crawl.PlatformTimeout = 0 }, config.ErrInvalidTimeout},
		{"threshold", func(c *config.Config) { c.Relevance.Threshold = 1.5 }, config.ErrInvalidThreshold},
		{"cpv", func(c *config.Config) { c.Relevance.HealthcareCPV = nil }, config.ErrEmptyCPVSet},
		{"platform", func(c *config.Config) { c.Platforms["ATLANTIS"] = config.PlatformConfig{} }, config.ErrUnknownPlatform},
		{"driver", func(c *config.Config) { c.Storage.Driver = "cassandra" }, config.ErrUnknownDriver},
		{"postgres dsn", func(c *config.Config) { c.Storage.Driver = config.DriverPostgres }, config.ErrMissingDSN},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
