// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. The engine packages only
// ever see this struct; none of them read files or environment directly.
type Config struct {
	Store    StoreConfig              `yaml:"store" mapstructure:"store"`
	Registry RegistryConfig           `yaml:"registry" mapstructure:"registry"`
	Scrape   ScrapeConfig             `yaml:"scrape" mapstructure:"scrape"`
	Pipeline PipelineConfig           `yaml:"pipeline" mapstructure:"pipeline"`
	Resolver ResolverConfig           `yaml:"resolver" mapstructure:"resolver"`
	Classify ClassifyConfig           `yaml:"classify" mapstructure:"classify"`
	Products map[string]ProductConfig `yaml:"products" mapstructure:"products"`
	Log      LogConfig                `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the checkpoint store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	Path        string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegistryConfig configures the nonprofit registry lookup client.
type RegistryConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	FetchDetail   bool    `yaml:"fetch_detail" mapstructure:"fetch_detail"`
}

// ScrapeConfig configures website text fetching.
type ScrapeConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBodyBytes  int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// PipelineConfig configures the enrichment orchestrator.
type PipelineConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMillis  int `yaml:"backoff_millis" mapstructure:"backoff_millis"`
	MaxBackoffSecs int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// ResolverConfig configures nonprofit status resolution.
type ResolverConfig struct {
	// KeywordWeights maps indicator category to confidence weight. Empty
	// means use the built-in defaults.
	KeywordWeights map[string]float64 `yaml:"keyword_weights" mapstructure:"keyword_weights"`
	EINWeight      float64            `yaml:"ein_weight" mapstructure:"ein_weight"`
	LikelyAt       float64            `yaml:"likely_at" mapstructure:"likely_at"`
}

// ClassifyConfig configures the organization type classifier.
type ClassifyConfig struct {
	// TablesPath optionally points at a YAML keyword-table file; empty
	// means use the built-in taxonomy tables.
	TablesPath string  `yaml:"tables_path" mapstructure:"tables_path"`
	MinScore   float64 `yaml:"min_score" mapstructure:"min_score"`
}

// ProductConfig holds per-product scoring thresholds and cutoffs.
type ProductConfig struct {
	Qualified        float64 `yaml:"qualified" mapstructure:"qualified"`
	HighPriority     float64 `yaml:"high_priority" mapstructure:"high_priority"`
	RevenueCutoff    int64   `yaml:"revenue_cutoff" mapstructure:"revenue_cutoff"`
	FoundedAfterYear int     `yaml:"founded_after_year" mapstructure:"founded_after_year"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leadopt.db")
	v.SetDefault("registry.base_url", "https://projects.propublica.org/nonprofits/api/v2")
	v.SetDefault("registry.timeout_secs", 10)
	v.SetDefault("registry.rate_per_second", 5)
	v.SetDefault("registry.fetch_detail", true)
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.max_body_bytes", 512*1024)
	v.SetDefault("scrape.rate_per_second", 10)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; LeadOptimizer/2.0)")
	v.SetDefault("pipeline.concurrency", 5)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_millis", 500)
	v.SetDefault("pipeline.max_backoff_secs", 30)
	v.SetDefault("resolver.ein_weight", 0.15)
	v.SetDefault("resolver.likely_at", 0.6)
	v.SetDefault("classify.min_score", 1.0)
	v.SetDefault("products.compass.qualified", 6.0)
	v.SetDefault("products.compass.high_priority", 8.0)
	v.SetDefault("products.upcurve.qualified", 6.0)
	v.SetDefault("products.upcurve.high_priority", 8.0)
	v.SetDefault("products.upcurve.revenue_cutoff", 5_000_000)
	v.SetDefault("products.upcurve.founded_after_year", 2018)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for internal consistency. Violations are
// fatal at startup; the engine never falls back to defaults silently.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Pipeline.Concurrency < 1 {
		errs = append(errs, "pipeline.concurrency must be >= 1")
	}
	if cfg.Pipeline.MaxAttempts < 1 {
		errs = append(errs, "pipeline.max_attempts must be >= 1")
	}

	if cfg.Resolver.EINWeight < 0 || cfg.Resolver.EINWeight > 1 {
		errs = append(errs, "resolver.ein_weight must be in [0,1]")
	}
	if cfg.Resolver.LikelyAt <= 0 || cfg.Resolver.LikelyAt > 1 {
		errs = append(errs, "resolver.likely_at must be in (0,1]")
	}
	for cat, w := range cfg.Resolver.KeywordWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("resolver.keyword_weights.%s must be >= 0", cat))
		}
	}

	if cfg.Classify.MinScore <= 0 {
		errs = append(errs, "classify.min_score must be > 0")
	}

	if len(cfg.Products) == 0 {
		errs = append(errs, "products: at least one product must be configured")
	}
	// Deterministic error ordering for tests and logs.
	names := make([]string, 0, len(cfg.Products))
	for name := range cfg.Products {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := cfg.Products[name]
		if p.Qualified < 0 || p.Qualified > 10 {
			errs = append(errs, fmt.Sprintf("products.%s.qualified must be in [0,10]", name))
		}
		if p.HighPriority < 0 || p.HighPriority > 10 {
			errs = append(errs, fmt.Sprintf("products.%s.high_priority must be in [0,10]", name))
		}
		if p.HighPriority < p.Qualified {
			errs = append(errs, fmt.Sprintf("products.%s.high_priority must be >= qualified", name))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
