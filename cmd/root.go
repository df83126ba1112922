package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/config"
	"github.com/assayworks/hallmark-cli/internal/license"
	"github.com/assayworks/hallmark-cli/internal/portal"
	"github.com/assayworks/hallmark-cli/internal/portal/rodriver"
	"github.com/assayworks/hallmark-cli/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hallmark-cli",
	Short: "Hallmarking back-office reconciliation and weight capture",
	Long:  "Scans the hallmarking portal's completed-jobs list, assigns job numbers to pending items, fills tag weights through the weighing form, and qualifies fire-assay results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initStore opens the configured store, migrated and wrapped with the
// per-call retry policy.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "hallmark.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return store.WithRetry(st, cfg.RetryPolicy()), nil
}

// initSession launches (or attaches to) the portal browser.
func initSession() (*portal.Session, func(), error) {
	d, err := rodriver.New(rodriver.Options{
		Headless:          cfg.Portal.Headless,
		ControlURL:        cfg.Portal.ControlURL,
		NavigationTimeout: cfg.Portal.NavTimeout(),
		ViewportWidth:     cfg.Portal.ViewportWidth,
		ViewportHeight:    cfg.Portal.ViewportHeight,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "open portal browser")
	}
	return portal.NewSession(d), func() { d.Close() }, nil
}

// checkLicense verifies the device license and starts the background
// revalidation worker for the lifetime of ctx. Skipped entirely when no
// endpoint is configured.
func checkLicense(ctx context.Context) error {
	if cfg.License.Endpoint == "" {
		return nil
	}

	client, err := license.New(license.Options{
		Endpoint:  cfg.License.Endpoint,
		CachePath: cfg.License.CachePath,
		Timeout:   time.Duration(cfg.License.TimeoutSecs) * time.Second,
		Retry:     cfg.RetryPolicy(),
	})
	if err != nil {
		return eris.Wrap(err, "license client")
	}
	if err := client.Check(ctx); err != nil {
		return err
	}

	interval := time.Duration(cfg.License.RevalidateHours) * time.Hour
	if interval > 0 {
		go client.Run(ctx, interval)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
