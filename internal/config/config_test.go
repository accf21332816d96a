package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadscout.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "en-US", cfg.Browser.Locale)
	assert.Equal(t, 1280, cfg.Browser.WindowWidth)
	assert.Equal(t, 10, cfg.Scrape.BusinessStallRounds)
	assert.Equal(t, 5, cfg.Scrape.ReviewStallRounds)
	assert.Equal(t, 120, cfg.Scrape.ReviewTimeoutSecs)
	assert.Equal(t, []int{1}, cfg.Scrape.Tiers)
	assert.Equal(t, 300, cfg.Navigator.ChallengeMaxWaitSecs)
	assert.InDelta(t, 1.0, cfg.Filters.MinRating, 0.001)
	assert.InDelta(t, 4.0, cfg.Filters.MaxRating, 0.001)
	assert.Equal(t, 10, cfg.Filters.MinReviews)
	assert.Equal(t, 50, cfg.Filters.MaxReviewsPerBusiness)
	assert.Equal(t, 3, cfg.Filters.MinViolationsToStop)
	assert.Equal(t, "France", cfg.Filters.Country)
	assert.Equal(t, "anthropic", cfg.Classifier.Provider)
	assert.Equal(t, 300, cfg.Classifier.MaxTokens)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, []string{"8.8.8.8:53", "1.1.1.1:53"}, cfg.Email.DNSServers)
	assert.Equal(t, "./output", cfg.Output.Dir)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.InDelta(t, 0.15, cfg.Pricing.OpenAI["gpt-4o-mini"].Input, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
filters:
  max_rating: 3.5
  country: Belgium
scrape:
  tiers: [1, 2]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 3.5, cfg.Filters.MaxRating, 0.001)
	assert.Equal(t, "Belgium", cfg.Filters.Country)
	assert.Equal(t, []int{1, 2}, cfg.Scrape.Tiers)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Filters.MinReviews)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("LEADSCOUT_STORE_DRIVER", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Store.Driver)
}

func TestLoadProviderKeysFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-oai")
	t.Setenv("LEADSCOUT_FILTERS_MIN_VIOLATIONS_TO_STOP", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", cfg.Anthropic.Key)
	assert.Equal(t, "sk-oai", cfg.OpenAI.Key)
	assert.Equal(t, 5, cfg.Filters.MinViolationsToStop)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LEADSCOUT_NOTION_LEAD_DB=db-123\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("LEADSCOUT_NOTION_LEAD_DB") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db-123", cfg.Notion.LeadDB)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "verbose", Format: "json"})
	assert.Error(t, err)
}

func validDefaults() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "sqlite", DatabaseURL: "leadscout.db"},
		Navigator:  NavigatorConfig{RatePerSec: 0.5, Retries: 2},
		Filters:    FiltersConfig{MinRating: 1, MaxRating: 4, MinReviews: 10, MaxReviewsPerBusiness: 50, MinViolationsToStop: 3},
		Classifier: ClassifierConfig{Provider: "anthropic"},
		Anthropic:  AnthropicConfig{Key: "sk-ant", Model: "claude-haiku-4-5-20251001"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Server:     ServerConfig{Port: 8080},
	}
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Classifier.Provider = "openai"
	err = cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.key is required")
}

func TestValidateRun_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Classifier.Provider = "bard"
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier.provider")
}

func TestValidateRun_Filters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"min above max", func(c *Config) { c.Filters.MinRating = 4.5 }, "filters.min_rating"},
		{"max above five", func(c *Config) { c.Filters.MaxRating = 6 }, "filters.min_rating"},
		{"zero violations", func(c *Config) { c.Filters.MinViolationsToStop = 0 }, "filters.min_violations_to_stop"},
		{"zero reviews", func(c *Config) { c.Filters.MaxReviewsPerBusiness = 0 }, "filters.max_reviews_per_business"},
		{"negative retries", func(c *Config) { c.Navigator.Retries = -1 }, "navigator.retries"},
		{"zero rate", func(c *Config) { c.Navigator.RatePerSec = 0 }, "navigator.rate_per_sec"},
		{"salesforce without key", func(c *Config) { c.Salesforce.ClientID = "cid" }, "salesforce.key_path"},
		{"notion without db", func(c *Config) { c.Notion.Token = "tok" }, "notion.lead_db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("run")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateRun_AggregatesErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Store.Driver = "mysql"
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "store.driver must be sqlite, postgres or none")
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateExport(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	assert.NoError(t, cfg.Validate("export"))

	cfg.Store.Driver = "none"
	err := cfg.Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must not be none")

	cfg.Store = StoreConfig{Driver: "postgres"}
	err = cfg.Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestClassifierModel(t *testing.T) {
	cfg := validDefaults()
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.ClassifierModel())

	cfg.Classifier.Provider = "openai"
	assert.Equal(t, "gpt-4o-mini", cfg.ClassifierModel())

	cfg.Classifier.Model = "gpt-4o"
	assert.Equal(t, "gpt-4o", cfg.ClassifierModel())
}

func TestRunFiltersAndCategories(t *testing.T) {
	cfg := validDefaults()
	cfg.Filters.Country = "France"
	cfg.Scrape.Tiers = []int{1}

	cats, err := cfg.Categories()
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	f := cfg.RunFilters(cats)
	assert.Equal(t, cats, f.Categories)
	assert.Equal(t, 3, f.MinViolationsToStop)
	assert.NoError(t, f.Validate())
}

func TestCategoriesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cats.yaml")
	body := `
categories:
  - name: plumber
    tier: 1
  - name: florist
    tier: 2
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg := validDefaults()
	cfg.Scrape.CategoriesFile = path
	cfg.Scrape.Tiers = []int{2}

	cats, err := cfg.Categories()
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "florist", cats[0].Name)
}
