package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "hallmark.db", cfg.Store.DatabaseURL)
	assert.True(t, cfg.Portal.Headless)
	assert.Equal(t, 30, cfg.Portal.NavTimeoutSecs)
	assert.Equal(t, 100, cfg.Scan.PageCap)
	assert.InDelta(t, 0.5, cfg.Scan.RatePerSec, 0.001)
	assert.True(t, cfg.Scan.SkipCompleted)
	assert.Equal(t, 50, cfg.Fill.IterationCap)
	assert.Equal(t, 1500, cfg.Fill.SettleMs)
	assert.True(t, cfg.Fill.HarvestHUID)
	assert.InDelta(t, 916.0, cfg.Assay.PurityThreshold, 0.001)
	assert.Equal(t, 24, cfg.License.RevalidateHours)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/hallmark
portal:
  base_url: https://portal.example/MANAK
  headless: false
assay:
  purity_threshold: 750.0
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "https://portal.example/MANAK", cfg.Portal.BaseURL)
	assert.False(t, cfg.Portal.Headless)
	assert.InDelta(t, 750.0, cfg.Assay.PurityThreshold, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Fill.IterationCap)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("HALLMARK_STORE_DRIVER", "postgres")
	t.Setenv("HALLMARK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("HALLMARK_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestDurationHelpers(t *testing.T) {
	cfg := PortalConfig{NavTimeoutSecs: 30}
	assert.Equal(t, 30*time.Second, cfg.NavTimeout())

	fill := FillConfig{SettleMs: 1500}
	assert.Equal(t, 1500*time.Millisecond, fill.Settle())
}

func TestRetryPolicy(t *testing.T) {
	cfg := &Config{Retry: RetryConfig{
		MaxAttempts:      5,
		InitialBackoffMs: 100,
		MaxBackoffMs:     2000,
		Multiplier:       3.0,
		JitterFraction:   0,
	}}

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialBackoff)
	assert.Equal(t, 2*time.Second, policy.MaxBackoff)
	assert.InDelta(t, 3.0, policy.Multiplier, 0.001)
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
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "hallmark.db"
	cfg.Portal.BaseURL = "https://portal.example/MANAK"
	cfg.Scan.PageCap = 100
	cfg.Fill.IterationCap = 50
	cfg.Assay.PurityThreshold = 916.0
	cfg.Batch.MaxStoreWorkers = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidatePortal_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("portal"))
}

func TestValidatePortal_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Portal.BaseURL = ""
	cfg.Assay.PurityThreshold = 0

	err := cfg.Validate("portal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal.base_url is required")
	assert.Contains(t, err.Error(), "assay.purity_threshold")
}

func TestValidatePortal_ThresholdAboveScale(t *testing.T) {
	cfg := validDefaults()
	cfg.Assay.PurityThreshold = 1001

	err := cfg.Validate("portal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "purity_threshold must be in (0, 1000]")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxStoreWorkers = 0
	err := cfg.Validate("portal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_store_workers must be between 1 and 32")

	cfg.Batch.MaxStoreWorkers = 33
	err = cfg.Validate("portal")
	require.Error(t, err)

	cfg.Batch.MaxStoreWorkers = 32
	assert.NoError(t, cfg.Validate("portal"))
}
