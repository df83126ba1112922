package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/batch"
)

var (
	reconcileFirmID  string
	reconcileListURL string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Assign portal job numbers to pending items",
	Long:  "Opens the job cards for every request that still has unmatched items, scores each card's item category against the request's declared items, and writes the winning job number to the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("portal"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := checkLicense(ctx); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		session, closeSession, err := initSession()
		if err != nil {
			return err
		}
		defer closeSession()

		runner := batch.NewRunner(cfg, st, session, nil)
		run, err := runner.RunReconcile(ctx, reconcileFirmID, listURLOrDefault(reconcileListURL))
		if err != nil {
			return err
		}

		zap.L().Info("reconcile complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("matched", run.Summary.Succeeded),
			zap.Int("partial", run.Summary.Partial),
			zap.Int("skipped", run.Summary.Skipped),
			zap.Int("failed", run.Summary.Failed),
		)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileFirmID, "firm", "", "limit reconciliation to one firm's pending items")
	reconcileCmd.Flags().StringVar(&reconcileListURL, "list-url", "", "completed-jobs list URL (default derived from portal.base_url)")
	rootCmd.AddCommand(reconcileCmd)
}
