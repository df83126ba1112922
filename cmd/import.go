package main

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/model"
)

var importFirmID string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import item and tag rosters from XLSX",
}

// Roster layout: header row, then
//
//	items: request_no | item_category | pieces | declared_purity | declared_weight
//	tags:  job_no | tag_no | serial_no | item_category | purity | weight
//
// A row with an unreadable number is logged and skipped; re-importing the
// same file refreshes rows in place without touching assigned job numbers
// or captured weights.
var importItemsCmd = &cobra.Command{
	Use:   "items <roster.xlsx>",
	Short: "Import pending items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := rosterRows(args[0])
		if err != nil {
			return err
		}

		var items []model.PendingItem
		skipped := 0
		for i, cells := range rows {
			if len(cells) < 5 || cells[0] == "" {
				skipped++
				continue
			}
			pieces, err1 := strconv.Atoi(cells[2])
			weight, err2 := strconv.ParseFloat(cells[4], 64)
			if err1 != nil || err2 != nil {
				zap.L().Warn("import: unreadable item row",
					zap.Int("row", i+2),
					zap.String("request_no", cells[0]),
				)
				skipped++
				continue
			}
			items = append(items, model.PendingItem{
				RequestNo:      cells[0],
				ItemCategory:   cells[1],
				Pieces:         pieces,
				DeclaredPurity: cells[3],
				DeclaredWeight: weight,
				FirmID:         importFirmID,
				Status:         model.ItemStatusPending,
			})
		}
		if len(items) == 0 {
			return eris.Errorf("import: no usable item rows in %s", args[0])
		}

		n, err := st.UpsertPendingItems(ctx, items)
		if err != nil {
			return err
		}
		zap.L().Info("import: items done",
			zap.Int64("upserted", n),
			zap.Int("skipped", skipped),
		)
		return nil
	},
}

var importTagsCmd = &cobra.Command{
	Use:   "tags <roster.xlsx>",
	Short: "Import job tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rows, err := rosterRows(args[0])
		if err != nil {
			return err
		}

		var tags []model.Tag
		skipped := 0
		for i, cells := range rows {
			if len(cells) < 5 || cells[0] == "" || cells[1] == "" {
				skipped++
				continue
			}
			serial, err := strconv.Atoi(cells[2])
			if err != nil {
				zap.L().Warn("import: unreadable tag row",
					zap.Int("row", i+2),
					zap.String("job_no", cells[0]),
				)
				skipped++
				continue
			}
			tag := model.Tag{
				JobNo:        cells[0],
				TagNo:        cells[1],
				SerialNo:     serial,
				ItemCategory: cells[3],
				Purity:       cells[4],
			}
			if len(cells) > 5 && cells[5] != "" {
				if w, err := strconv.ParseFloat(cells[5], 64); err == nil {
					tag.Weight = w
				}
			}
			tags = append(tags, tag)
		}
		if len(tags) == 0 {
			return eris.Errorf("import: no usable tag rows in %s", args[0])
		}

		n, err := st.SaveTags(ctx, tags)
		if err != nil {
			return err
		}
		zap.L().Info("import: tags done",
			zap.Int64("saved", n),
			zap.Int("skipped", skipped),
		)
		return nil
	},
}

// rosterRows reads the first sheet, skipping the header row.
func rosterRows(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "import: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("import: %s has no sheets", path)
	}

	var rows [][]string
	for i, row := range f.Sheets[0].Rows {
		if i == 0 {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = strings.TrimSpace(c.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func init() {
	importCmd.PersistentFlags().StringVar(&importFirmID, "firm", "", "firm identifier stamped on imported items")
	importCmd.AddCommand(importItemsCmd)
	importCmd.AddCommand(importTagsCmd)
	rootCmd.AddCommand(importCmd)
}
