package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/batch"
)

var (
	scanFirmID  string
	scanListURL string
	scanJSON    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Walk the portal's completed-jobs list and print what it holds",
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
		records, run, err := runner.RunScan(ctx, scanFirmID, listURLOrDefault(scanListURL))
		if err != nil {
			return err
		}

		if scanJSON {
			return json.NewEncoder(os.Stdout).Encode(records)
		}
		for _, rec := range records {
			zap.L().Info("scanned job",
				zap.String("request_no", rec.RequestNo),
				zap.String("job_no", rec.JobNo),
				zap.String("material", string(rec.Material)),
				zap.String("portal_status", rec.PortalStatus),
			)
		}
		zap.L().Info("scan complete",
			zap.String("run_id", run.ID),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

// listURLOrDefault resolves the completed-jobs list URL: the flag wins,
// otherwise the portal base URL plus the list path.
func listURLOrDefault(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Portal.BaseURL + "/frmQMCompletedJobList.aspx"
}

func init() {
	scanCmd.Flags().StringVar(&scanFirmID, "firm", "", "firm identifier recorded with the run")
	scanCmd.Flags().StringVar(&scanListURL, "list-url", "", "completed-jobs list URL (default derived from portal.base_url)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print records as JSON")
	rootCmd.AddCommand(scanCmd)
}
