package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/batch"
)

var (
	fillFirmID   string
	fillManifest string
	fillSubmit   bool
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill cached tag weights into the portal's weighing forms",
	Long:  "Runs the convergence loop on each matched job: preload the weight cache, open the weighing form, type and save weights until every known tag is filled, then harvest HUID codes back into the store.",
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

		if fillSubmit {
			cfg.Fill.SubmitForDelivery = true
		}
		runner := batch.NewRunner(cfg, st, session, nil)

		var targets []batch.FillTarget
		firmID := fillFirmID
		if fillManifest != "" {
			m, err := batch.LoadManifest(fillManifest)
			if err != nil {
				return err
			}
			targets = m.Jobs
			if firmID == "" {
				firmID = m.FirmID
			}
		} else {
			targets, err = runner.TargetsFromStore(ctx, firmID)
			if err != nil {
				return err
			}
		}
		if len(targets) == 0 {
			zap.L().Info("nothing to fill")
			return nil
		}

		run, err := runner.RunFill(ctx, firmID, targets)
		if err != nil {
			return err
		}

		zap.L().Info("fill complete",
			zap.String("run_id", run.ID),
			zap.String("status", string(run.Status)),
			zap.Int("jobs", len(targets)),
			zap.Int("succeeded", run.Summary.Succeeded),
			zap.Int("partial", run.Summary.Partial),
			zap.Int("skipped", run.Summary.Skipped),
			zap.Int("failed", run.Summary.Failed),
		)
		return nil
	},
}

func init() {
	fillCmd.Flags().StringVar(&fillFirmID, "firm", "", "fill every matched item of this firm")
	fillCmd.Flags().StringVar(&fillManifest, "manifest", "", "YAML manifest naming the jobs to fill")
	fillCmd.Flags().BoolVar(&fillSubmit, "submit", false, "submit converged jobs for delivery voucher")
	rootCmd.AddCommand(fillCmd)
}
