package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadscout/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Navigator  NavigatorConfig  `yaml:"navigator" mapstructure:"navigator"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Filters    FiltersConfig    `yaml:"filters" mapstructure:"filters"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend. Driver "none" disables persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BrowserConfig controls the Chrome instance that drives the map pages.
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	ChromePath     string `yaml:"chrome_path" mapstructure:"chrome_path"`
	UserDataDir    string `yaml:"user_data_dir" mapstructure:"user_data_dir"`
	Locale         string `yaml:"locale" mapstructure:"locale"`
	AcceptLanguage string `yaml:"accept_language" mapstructure:"accept_language"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	WindowWidth    int    `yaml:"window_width" mapstructure:"window_width"`
	WindowHeight   int    `yaml:"window_height" mapstructure:"window_height"`
	NoSandbox      bool   `yaml:"no_sandbox" mapstructure:"no_sandbox"`
}

// NavigatorConfig controls page navigation pacing and challenge handling.
type NavigatorConfig struct {
	RatePerSec           float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst                int     `yaml:"burst" mapstructure:"burst"`
	Retries              int     `yaml:"retries" mapstructure:"retries"`
	SettleMs             int     `yaml:"settle_ms" mapstructure:"settle_ms"`
	TimeoutSecs          int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ChallengePollSecs    int     `yaml:"challenge_poll_secs" mapstructure:"challenge_poll_secs"`
	ChallengeMaxWaitSecs int     `yaml:"challenge_max_wait_secs" mapstructure:"challenge_max_wait_secs"`
}

// ScrapeConfig controls the scroll loops and pacing between searches.
type ScrapeConfig struct {
	SearchURL           string `yaml:"search_url" mapstructure:"search_url"`
	BusinessStallRounds int    `yaml:"business_stall_rounds" mapstructure:"business_stall_rounds"`
	BusinessMaxRounds   int    `yaml:"business_max_rounds" mapstructure:"business_max_rounds"`
	BusinessSettleMs    int    `yaml:"business_settle_ms" mapstructure:"business_settle_ms"`
	ReviewStallRounds   int    `yaml:"review_stall_rounds" mapstructure:"review_stall_rounds"`
	ReviewMaxRounds     int    `yaml:"review_max_rounds" mapstructure:"review_max_rounds"`
	ReviewSettleMs      int    `yaml:"review_settle_ms" mapstructure:"review_settle_ms"`
	ReviewWaitSecs      int    `yaml:"review_wait_secs" mapstructure:"review_wait_secs"`
	ReviewTimeoutSecs   int    `yaml:"review_timeout_secs" mapstructure:"review_timeout_secs"`
	ScrollDelta         int    `yaml:"scroll_delta" mapstructure:"scroll_delta"`
	CategoryPauseMs     int    `yaml:"category_pause_ms" mapstructure:"category_pause_ms"`
	RegionPauseMs       int    `yaml:"region_pause_ms" mapstructure:"region_pause_ms"`
	CategoriesFile      string `yaml:"categories_file" mapstructure:"categories_file"`
	Tiers               []int  `yaml:"tiers" mapstructure:"tiers"`
}

// FiltersConfig holds the default run thresholds.
type FiltersConfig struct {
	MinRating             float64 `yaml:"min_rating" mapstructure:"min_rating"`
	MaxRating             float64 `yaml:"max_rating" mapstructure:"max_rating"`
	MinReviews            int     `yaml:"min_reviews" mapstructure:"min_reviews"`
	MaxReviewsPerBusiness int     `yaml:"max_reviews_per_business" mapstructure:"max_reviews_per_business"`
	MinViolationsToStop   int     `yaml:"min_violations_to_stop" mapstructure:"min_violations_to_stop"`
	ClassifyAll           bool    `yaml:"classify_all" mapstructure:"classify_all"`
	Country               string  `yaml:"country" mapstructure:"country"`
}

// ClassifierConfig selects and tunes the review classifier.
type ClassifierConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Model            string  `yaml:"model" mapstructure:"model"`
	Temperature      float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens        int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Cache            bool    `yaml:"cache" mapstructure:"cache"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds settings for an OpenAI-compatible chat completions API.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// EmailConfig controls the contact email hunt on business websites.
type EmailConfig struct {
	Enabled         bool     `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BrowserFallback bool     `yaml:"browser_fallback" mapstructure:"browser_fallback"`
	VerifyMX        bool     `yaml:"verify_mx" mapstructure:"verify_mx"`
	DNSServers      []string `yaml:"dns_servers" mapstructure:"dns_servers"`
}

// OutputConfig controls where lead files are written.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// NotionConfig holds Notion API credentials and the lead database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	EventBuffer    int      `yaml:"event_buffer" mapstructure:"event_buffer"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the serve-mode alert checker. An empty
// webhook URL disables it.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	BlockedRunsThreshold int     `yaml:"blocked_runs_threshold" mapstructure:"blocked_runs_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PricingConfig holds per-provider token pricing.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelPricing `yaml:"openai" mapstructure:"openai"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional provider variables work alongside the prefixed ones.
	_ = v.BindEnv("anthropic.key", "LEADSCOUT_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("openai.key", "LEADSCOUT_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("browser.headless", "LEADSCOUT_BROWSER_HEADLESS", "HEADLESS_MODE")
	_ = v.BindEnv("output.dir", "LEADSCOUT_OUTPUT_DIR", "OUTPUT_DIR")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadscout.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.chrome_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.no_sandbox", false)

	v.SetDefault("navigator.rate_per_sec", 0.5)
	v.SetDefault("navigator.burst", 1)
	v.SetDefault("navigator.retries", 2)
	v.SetDefault("navigator.settle_ms", 2000)
	v.SetDefault("navigator.timeout_secs", 30)
	v.SetDefault("navigator.challenge_poll_secs", 5)
	v.SetDefault("navigator.challenge_max_wait_secs", 300)

	v.SetDefault("scrape.search_url", "https://www.google.com/maps/search/")
	v.SetDefault("scrape.business_stall_rounds", 10)
	v.SetDefault("scrape.business_max_rounds", 20)
	v.SetDefault("scrape.business_settle_ms", 2000)
	v.SetDefault("scrape.review_stall_rounds", 5)
	v.SetDefault("scrape.review_max_rounds", 15)
	v.SetDefault("scrape.review_settle_ms", 1500)
	v.SetDefault("scrape.review_wait_secs", 10)
	v.SetDefault("scrape.review_timeout_secs", 120)
	v.SetDefault("scrape.scroll_delta", 3000)
	v.SetDefault("scrape.category_pause_ms", 1000)
	v.SetDefault("scrape.region_pause_ms", 2000)
	v.SetDefault("scrape.categories_file", "")
	v.SetDefault("scrape.tiers", []int{1})

	v.SetDefault("filters.min_rating", 1.0)
	v.SetDefault("filters.max_rating", 4.0)
	v.SetDefault("filters.min_reviews", 10)
	v.SetDefault("filters.max_reviews_per_business", 50)
	v.SetDefault("filters.min_violations_to_stop", 3)
	v.SetDefault("filters.classify_all", false)
	v.SetDefault("filters.country", "France")

	v.SetDefault("classifier.provider", "anthropic")
	v.SetDefault("classifier.model", "")
	v.SetDefault("classifier.temperature", 0.3)
	v.SetDefault("classifier.max_tokens", 300)
	v.SetDefault("classifier.cache", true)
	v.SetDefault("classifier.retry_attempts", 3)
	v.SetDefault("classifier.breaker_threshold", 5)
	v.SetDefault("classifier.breaker_reset_secs", 30)

	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4o-mini")

	v.SetDefault("email.enabled", true)
	v.SetDefault("email.timeout_secs", 15)
	v.SetDefault("email.browser_fallback", true)
	v.SetDefault("email.verify_mx", false)
	v.SetDefault("email.dns_servers", []string{"8.8.8.8:53", "1.1.1.1:53"})

	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.formats", []string{"csv", "json"})

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.event_buffer", 256)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.blocked_runs_threshold", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 0.80, "output": 4.00},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.00, "output": 15.00},
	})
	v.SetDefault("pricing.openai", map[string]any{
		"gpt-4o-mini": map[string]any{"input": 0.15, "output": 0.60},
		"gpt-4o":      map[string]any{"input": 2.50, "output": 10.00},
	})
}

// ClassifierModel returns the model for the selected provider, preferring
// classifier.model when set.
func (c *Config) ClassifierModel() string {
	if c.Classifier.Model != "" {
		return c.Classifier.Model
	}
	if c.Classifier.Provider == "openai" {
		return c.OpenAI.Model
	}
	return c.Anthropic.Model
}

// RunFilters builds the immutable run filters from the defaults in config.
func (c *Config) RunFilters(categories []model.Category) model.Filters {
	return model.Filters{
		MinRating:             c.Filters.MinRating,
		MaxRating:             c.Filters.MaxRating,
		MinReviews:            c.Filters.MinReviews,
		MaxReviewsPerBusiness: c.Filters.MaxReviewsPerBusiness,
		MinViolationsToStop:   c.Filters.MinViolationsToStop,
		ClassifyAll:           c.Filters.ClassifyAll,
		Categories:            categories,
		Country:               c.Filters.Country,
	}
}

// Categories resolves the configured category set: the preset file when
// given, else the built-in tiers, filtered by scrape.tiers.
func (c *Config) Categories() ([]model.Category, error) {
	if c.Scrape.CategoriesFile != "" {
		cats, err := model.LoadCategories(c.Scrape.CategoriesFile)
		if err != nil {
			return nil, err
		}
		return model.FilterTiers(cats, c.Scrape.Tiers...), nil
	}
	return model.CategoriesForTiers(c.Scrape.Tiers...), nil
}

// Ms converts a millisecond config value to a duration.
func Ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Secs converts a second config value to a duration.
func Secs(n int) time.Duration { return time.Duration(n) * time.Second }

// Validate checks that the settings a command needs are present. Mode is
// one of "run", "serve" or "export".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run", "serve":
		errs = append(errs, c.validateScrape()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "export":
		if c.Store.Driver == "none" {
			errs = append(errs, "store.driver must not be none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateScrape() []string {
	var errs []string

	switch c.Classifier.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	default:
		errs = append(errs, "classifier.provider must be anthropic or openai")
	}

	f := c.Filters
	if f.MinRating < 0 || f.MaxRating > 5 || f.MinRating > f.MaxRating {
		errs = append(errs, "filters.min_rating and filters.max_rating must satisfy 0 <= min <= max <= 5")
	}
	if f.MinViolationsToStop < 1 {
		errs = append(errs, "filters.min_violations_to_stop must be >= 1")
	}
	if f.MaxReviewsPerBusiness < 1 {
		errs = append(errs, "filters.max_reviews_per_business must be >= 1")
	}
	if c.Navigator.Retries < 0 {
		errs = append(errs, "navigator.retries must be >= 0")
	}
	if c.Navigator.RatePerSec <= 0 {
		errs = append(errs, "navigator.rate_per_sec must be > 0")
	}
	if c.Salesforce.ClientID != "" && c.Salesforce.KeyPath == "" {
		errs = append(errs, "salesforce.key_path is required when salesforce.client_id is set")
	}
	if c.Notion.Token != "" && c.Notion.LeadDB == "" {
		errs = append(errs, "notion.lead_db is required when notion.token is set")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{"store.driver must be sqlite, postgres or none"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
