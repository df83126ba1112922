package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/assayworks/hallmark-cli/internal/batch"
	"github.com/assayworks/hallmark-cli/internal/store"
	"github.com/assayworks/hallmark-cli/internal/weights"
)

var (
	jobsFirmID   string
	jobsWithScan bool
	jobsListURL  string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List items with their combined store and portal status",
	Long:  "Joins every pending item with its cached weight count and, with --scan, with the jobs visible on the portal list, then prints one row per item with the combined state: unmatched, needs-initial-values, ready, or completed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListPendingItems(ctx, store.ItemFilter{FirmID: jobsFirmID})
		if err != nil {
			return err
		}

		jobNos := make([]string, 0, len(items))
		for _, it := range items {
			if it.Matched() {
				jobNos = append(jobNos, it.JobNo)
			}
		}
		cache, err := weights.Preload(ctx, st, jobNos)
		if err != nil {
			return err
		}
		weightsKnown := make(map[string]int, len(cache))
		for jobNo, tags := range cache {
			weightsKnown[jobNo] = len(tags)
		}

		var seen map[string]string
		if jobsWithScan {
			if err := cfg.Validate("portal"); err != nil {
				return err
			}
			session, closeSession, err := initSession()
			if err != nil {
				return err
			}
			defer closeSession()

			runner := batch.NewRunner(cfg, st, session, nil)
			records, _, err := runner.RunScan(ctx, jobsFirmID, listURLOrDefault(jobsListURL))
			if err != nil {
				return err
			}
			seen = make(map[string]string, len(records))
			for _, rec := range records {
				seen[rec.JobNo] = rec.PortalStatus
			}
		}

		views := batch.CombineStatuses(items, weightsKnown, seen)
		fmt.Println(renderJobsTable(views, jobsWithScan))
		return nil
	},
}

func renderJobsTable(views []batch.JobView, withPortal bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := table.Row{"Request No", "Job No", "Item", "Pieces", "Weights", "Status"}
	if withPortal {
		header = append(header, "On Portal")
	}
	tw.AppendHeader(header)

	for _, v := range views {
		row := table.Row{
			v.RequestNo,
			v.JobNo,
			v.ItemCategory,
			strconv.Itoa(v.Pieces),
			strconv.Itoa(v.WeightsKnown),
			v.Combined,
		}
		if withPortal {
			onPortal := ""
			if v.OnPortal {
				onPortal = "yes"
			}
			row = append(row, onPortal)
		}
		tw.AppendRow(row)
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	return tw.Render()
}

func init() {
	jobsCmd.Flags().StringVar(&jobsFirmID, "firm", "", "limit the listing to one firm")
	jobsCmd.Flags().BoolVar(&jobsWithScan, "scan", false, "also scan the portal list and mark jobs seen there")
	jobsCmd.Flags().StringVar(&jobsListURL, "list-url", "", "completed-jobs list URL (default derived from portal.base_url)")
	rootCmd.AddCommand(jobsCmd)
}
