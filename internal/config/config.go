package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	WebSearch  WebSearchConfig  `yaml:"websearch" mapstructure:"websearch"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the cache and telemetry backend. The pool
// settings apply to the postgres driver only; zero means the backend's
// default.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	Path          string `yaml:"path" mapstructure:"path"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	PoolMaxConns  int32  `yaml:"pool_max_conns" mapstructure:"pool_max_conns"`
	PoolMinConns  int32  `yaml:"pool_min_conns" mapstructure:"pool_min_conns"`
}

// SearchConfig configures the discovery pipeline.
type SearchConfig struct {
	MaxIterations      int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	DefaultTarget      int     `yaml:"default_target" mapstructure:"default_target"`
	MaxPerRound        int     `yaml:"max_per_round" mapstructure:"max_per_round"`
	FetchPoolSize      int     `yaml:"fetch_pool_size" mapstructure:"fetch_pool_size"`
	FetchTimeoutSecs   int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	ExtractConcurrency int     `yaml:"extract_concurrency" mapstructure:"extract_concurrency"`
	ExtractTimeoutSecs int     `yaml:"extract_timeout_secs" mapstructure:"extract_timeout_secs"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	LookupRatePerSec   float64 `yaml:"lookup_rate_per_sec" mapstructure:"lookup_rate_per_sec"`
	AliasFile          string  `yaml:"alias_file" mapstructure:"alias_file"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// WebSearchConfig holds web-search lookup API settings.
type WebSearchConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// NotionConfig holds Notion API credentials and the prospect database ID.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	ProspectDB string `yaml:"prospect_db" mapstructure:"prospect_db"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures the background health checker and its
// webhook alerts. An empty WebhookURL disables delivery; a zero cost
// threshold or success-rate floor disables that check.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ExhaustionRateThreshold float64 `yaml:"exhaustion_rate_threshold" mapstructure:"exhaustion_rate_threshold"`
	SuccessRateFloor        float64 `yaml:"success_rate_floor" mapstructure:"success_rate_floor"`
	CostThresholdUSD        float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "prospector.db")
	v.SetDefault("store.cache_ttl_hours", 168)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("search.max_iterations", 2)
	v.SetDefault("search.default_target", 5)
	v.SetDefault("search.max_per_round", 20)
	v.SetDefault("search.fetch_pool_size", 12)
	v.SetDefault("search.fetch_timeout_secs", 15)
	v.SetDefault("search.batch_size", 8)
	v.SetDefault("search.extract_concurrency", 2)
	v.SetDefault("search.extract_timeout_secs", 60)
	v.SetDefault("search.timeout_secs", 120)
	v.SetDefault("search.lookup_rate_per_sec", 8.0)
	v.SetDefault("websearch.base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("monitoring.exhaustion_rate_threshold", 0.5)
	v.SetDefault("monitoring.success_rate_floor", 0.15)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

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

// Validate checks that the configuration is usable for the given mode
// ("search" or "serve"). All problems are reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "search", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		problems = append(problems, "store.driver must be one of sqlite, postgres, memory")
	}

	if c.Search.MaxIterations < 1 || c.Search.MaxIterations > 5 {
		problems = append(problems, "search.max_iterations must be between 1 and 5")
	}
	if c.Search.FetchPoolSize < 1 || c.Search.FetchPoolSize > 50 {
		problems = append(problems, "search.fetch_pool_size must be between 1 and 50")
	}
	if c.Search.BatchSize < 1 || c.Search.BatchSize > 20 {
		problems = append(problems, "search.batch_size must be between 1 and 20")
	}
	if c.Search.ExtractConcurrency < 1 || c.Search.ExtractConcurrency > 10 {
		problems = append(problems, "search.extract_concurrency must be between 1 and 10")
	}
	if c.Search.MaxPerRound < 1 {
		problems = append(problems, "search.max_per_round must be > 0")
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
