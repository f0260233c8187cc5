package config

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Patrol     PatrolConfig     `yaml:"patrol" mapstructure:"patrol"`
	Feed       FeedConfig       `yaml:"feed" mapstructure:"feed"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Alerts     AlertsConfig     `yaml:"alerts" mapstructure:"alerts"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Profiles   string           `yaml:"profiles" mapstructure:"profiles"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings. Models lists acceptable
// model identifiers in priority order; the client falls through the list
// on model-not-found responses.
type AnthropicConfig struct {
	Key    string   `yaml:"key" mapstructure:"key"`
	Models []string `yaml:"models" mapstructure:"models"`
}

// PerplexityConfig holds settings for the OpenAI-compatible fallback
// AI provider.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// FirecrawlConfig holds Firecrawl API settings (remote fetch fallback).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion API credentials and target database IDs.
type NotionConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	PriceDB string `yaml:"price_db" mapstructure:"price_db"`
	AlertDB string `yaml:"alert_db" mapstructure:"alert_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// BrowserConfig configures the headless rendering collaborator.
type BrowserConfig struct {
	Headless       bool `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs int  `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	// MaxExpanders bounds how many collapsed-section toggles a page visit
	// may click before reading content.
	MaxExpanders int `yaml:"max_expanders" mapstructure:"max_expanders"`
}

// PatrolConfig configures batch extraction behavior.
type PatrolConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// MinPrice and MaxPrice bound the plausible price range; evidence
	// outside it is never selectable.
	MinPrice float64 `yaml:"min_price" mapstructure:"min_price"`
	MaxPrice float64 `yaml:"max_price" mapstructure:"max_price"`
	// MinDescriptionLen is the validator's minimum rune count.
	MinDescriptionLen int `yaml:"min_description_len" mapstructure:"min_description_len"`
	// Pacing, in seconds. Zeroing both disables pacing (tests do this).
	PauseAfterLoadMinSecs int `yaml:"pause_after_load_min_secs" mapstructure:"pause_after_load_min_secs"`
	PauseAfterLoadMaxSecs int `yaml:"pause_after_load_max_secs" mapstructure:"pause_after_load_max_secs"`
	PauseBetweenMinSecs   int `yaml:"pause_between_min_secs" mapstructure:"pause_between_min_secs"`
	PauseBetweenMaxSecs   int `yaml:"pause_between_max_secs" mapstructure:"pause_between_max_secs"`
	// BreakerThreshold is the consecutive non-rate-limit AI failure count
	// that opens the circuit for the rest of the run.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	// AIMaxChars caps the page text sent to the AI collaborator.
	AIMaxChars int `yaml:"ai_max_chars" mapstructure:"ai_max_chars"`
}

// FeedConfig configures supplier price-list ingestion.
type FeedConfig struct {
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	FTPTimeoutSecs int     `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// PricingConfig holds per-model token pricing (USD per million tokens).
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelPricing holds per-model token pricing.
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerplexityPricing holds flat per-query pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// AlertsConfig configures price-drop alerting.
type AlertsConfig struct {
	// DropPercent triggers an alert when a new verdict undercuts the
	// previous price by at least this percentage.
	DropPercent float64 `yaml:"drop_percent" mapstructure:"drop_percent"`
	Notion      bool    `yaml:"notion" mapstructure:"notion"`
}

// ServerConfig configures the read-only status API.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultSQLitePath returns the default local database file location.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, "price-patrol", "patrol.db")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file: working directory first, then the XDG config dir.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, "price-patrol"))

	// Environment
	v.SetEnvPrefix("PATROL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", DefaultSQLitePath())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("anthropic.models", []string{
		"claude-haiku-4-5-20251001",
		"claude-3-5-haiku-latest",
		"claude-3-haiku-20240307",
	})
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_secs", 60)
	v.SetDefault("browser.max_expanders", 5)
	v.SetDefault("patrol.concurrency", 3)
	v.SetDefault("patrol.min_price", 5.00)
	v.SetDefault("patrol.max_price", 50000.00)
	v.SetDefault("patrol.min_description_len", 30)
	v.SetDefault("patrol.pause_after_load_min_secs", 5)
	v.SetDefault("patrol.pause_after_load_max_secs", 10)
	v.SetDefault("patrol.pause_between_min_secs", 5)
	v.SetDefault("patrol.pause_between_max_secs", 15)
	v.SetDefault("patrol.breaker_threshold", 3)
	v.SetDefault("patrol.ai_max_chars", 8000)
	v.SetDefault("feed.timeout_secs", 120)
	v.SetDefault("feed.rate_per_sec", 2)
	v.SetDefault("feed.ftp_timeout_secs", 30)
	v.SetDefault("alerts.drop_percent", 10)
	v.SetDefault("pricing.anthropic", map[string]ModelPricing{
		"claude-haiku-4-5-20251001": {Input: 1.00, Output: 5.00},
		"claude-3-5-haiku-latest":   {Input: 0.80, Output: 4.00},
		"claude-3-haiku-20240307":   {Input: 0.25, Output: 1.25},
	})
	v.SetDefault("pricing.perplexity.per_query", 0.005)

	// Read config file (optional)
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

// Validate checks that the configuration is usable for the given mode.
// Modes: "patrol" (needs a reachable store and sane patrol knobs), "ai"
// (patrol plus an AI credential), "serve" (needs a listen address),
// "export" (needs the relevant sink credentials checked by the command).
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}
	checkPatrol := func() {
		if c.Patrol.Concurrency < 1 || c.Patrol.Concurrency > 10 {
			problems = append(problems, "patrol.concurrency must be between 1 and 10")
		}
		if c.Patrol.MinPrice <= 0 || c.Patrol.MaxPrice <= c.Patrol.MinPrice {
			problems = append(problems, "patrol price range must satisfy 0 < min_price < max_price")
		}
		if c.Patrol.MinDescriptionLen < 1 {
			problems = append(problems, "patrol.min_description_len must be >= 1")
		}
	}

	switch mode {
	case "patrol":
		checkStore()
		checkPatrol()
	case "ai":
		checkStore()
		checkPatrol()
		if c.Anthropic.Key == "" && c.Perplexity.Key == "" {
			problems = append(problems, "anthropic.key or perplexity.key is required")
		}
	case "serve":
		checkStore()
		if c.Server.Addr == "" {
			problems = append(problems, "server.addr is required")
		}
	case "store":
		checkStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
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
