package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assayworks/hallmark-cli/internal/report"
)

var (
	reportFirmID string
	reportOutDir string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export batch outcomes",
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write runs, items, and captured weights to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outDir := reportOutDir
		if outDir == "" {
			outDir = cfg.Report.OutputDir
		}

		path, err := report.NewExporter(st, outDir).Export(ctx, reportFirmID)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	reportExportCmd.Flags().StringVar(&reportFirmID, "firm", "", "limit the export to one firm")
	reportExportCmd.Flags().StringVar(&reportOutDir, "out-dir", "", "output directory (default from config)")
	reportCmd.AddCommand(reportExportCmd)
	rootCmd.AddCommand(reportCmd)
}
