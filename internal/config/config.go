// Package config loads the application configuration from file and
// environment and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/assayworks/hallmark-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Portal  PortalConfig  `yaml:"portal" mapstructure:"portal"`
	Scan    ScanConfig    `yaml:"scan" mapstructure:"scan"`
	Fill    FillConfig    `yaml:"fill" mapstructure:"fill"`
	Assay   AssayConfig   `yaml:"assay" mapstructure:"assay"`
	License LicenseConfig `yaml:"license" mapstructure:"license"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PortalConfig configures the browser connection to the hallmarking portal.
type PortalConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	ControlURL     string `yaml:"control_url" mapstructure:"control_url"`
	Headless       bool   `yaml:"headless" mapstructure:"headless"`
	NavTimeoutSecs int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	ViewportWidth  int    `yaml:"viewport_width" mapstructure:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" mapstructure:"viewport_height"`
}

// ScanConfig configures the completed-jobs list scan.
type ScanConfig struct {
	PageCap        int     `yaml:"page_cap" mapstructure:"page_cap"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	SkipCompleted  bool    `yaml:"skip_completed" mapstructure:"skip_completed"`
	AdvanceTimeout int     `yaml:"advance_timeout_secs" mapstructure:"advance_timeout_secs"`
}

// FillConfig configures the weight convergence loop.
type FillConfig struct {
	IterationCap      int  `yaml:"iteration_cap" mapstructure:"iteration_cap"`
	SettleMs          int  `yaml:"settle_ms" mapstructure:"settle_ms"`
	SubmitForDelivery bool `yaml:"submit_for_delivery" mapstructure:"submit_for_delivery"`
	HarvestHUID       bool `yaml:"harvest_huid" mapstructure:"harvest_huid"`
}

// AssayConfig configures fineness qualification.
type AssayConfig struct {
	// PurityThreshold is on the per-mille (0-1000) scale, e.g. 916.0 for
	// 22-carat gold.
	PurityThreshold float64 `yaml:"purity_threshold" mapstructure:"purity_threshold"`
}

// LicenseConfig configures cached credential revalidation.
type LicenseConfig struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	CachePath       string `yaml:"cache_path" mapstructure:"cache_path"`
	RevalidateHours int    `yaml:"revalidate_hours" mapstructure:"revalidate_hours"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReportConfig configures XLSX export.
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// BatchConfig configures store-side batch concurrency. Portal access is
// always serialized; this bounds only database work.
type BatchConfig struct {
	MaxStoreWorkers int `yaml:"max_store_workers" mapstructure:"max_store_workers"`
}

// RetryConfig configures the per-call retry policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("HALLMARK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "hallmark.db")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.nav_timeout_secs", 30)
	v.SetDefault("portal.viewport_width", 1366)
	v.SetDefault("portal.viewport_height", 900)
	v.SetDefault("scan.page_cap", 100)
	v.SetDefault("scan.rate_per_sec", 0.5)
	v.SetDefault("scan.skip_completed", true)
	v.SetDefault("scan.advance_timeout_secs", 10)
	v.SetDefault("fill.iteration_cap", 50)
	v.SetDefault("fill.settle_ms", 1500)
	v.SetDefault("fill.harvest_huid", true)
	v.SetDefault("assay.purity_threshold", 916.0)
	v.SetDefault("license.cache_path", ".hallmark/license.json")
	v.SetDefault("license.revalidate_hours", 24)
	v.SetDefault("license.timeout_secs", 15)
	v.SetDefault("report.output_dir", ".")
	v.SetDefault("batch.max_store_workers", 4)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the fields a command mode depends on. Modes: "portal"
// for scan/reconcile/fill, "serve" for the status server, "store" for
// store-only commands.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "portal":
		if c.Portal.BaseURL == "" {
			problems = append(problems, "portal.base_url is required")
		}
		if c.Scan.PageCap <= 0 {
			problems = append(problems, "scan.page_cap must be > 0")
		}
		if c.Fill.IterationCap <= 0 {
			problems = append(problems, "fill.iteration_cap must be > 0")
		}
		if c.Assay.PurityThreshold <= 0 || c.Assay.PurityThreshold > 1000 {
			problems = append(problems, "assay.purity_threshold must be in (0, 1000]")
		}
		if c.Batch.MaxStoreWorkers < 1 || c.Batch.MaxStoreWorkers > 32 {
			problems = append(problems, "batch.max_store_workers must be between 1 and 32")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "store":
		// Store checks above are sufficient.
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RetryPolicy converts the retry section into the resilience package's
// config type.
func (c *Config) RetryPolicy() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		c.Retry.MaxAttempts,
		c.Retry.InitialBackoffMs,
		c.Retry.MaxBackoffMs,
		c.Retry.Multiplier,
		c.Retry.JitterFraction,
	)
}

// NavTimeout returns the portal navigation timeout as a duration.
func (p PortalConfig) NavTimeout() time.Duration {
	return time.Duration(p.NavTimeoutSecs) * time.Second
}

// Settle returns the post-save settle delay as a duration.
func (f FillConfig) Settle() time.Duration {
	return time.Duration(f.SettleMs) * time.Millisecond
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
