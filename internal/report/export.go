// Package report renders batch outcomes into XLSX workbooks for the back
// office: run tallies, reconciled items, and captured tag weights.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/assayworks/hallmark-cli/internal/assay"
	"github.com/assayworks/hallmark-cli/internal/store"
)

const weightFormat = "0.000"

// Exporter pulls batch outcomes from the store and writes one workbook
// per export.
type Exporter struct {
	store     store.Store
	outputDir string
	now       func() time.Time
}

// NewExporter builds an Exporter writing into outputDir.
func NewExporter(st store.Store, outputDir string) *Exporter {
	return &Exporter{store: st, outputDir: outputDir, now: time.Now}
}

// Export writes the runs, items, and weights sheets for one firm and
// returns the workbook path. An empty firmID exports everything.
func (e *Exporter) Export(ctx context.Context, firmID string) (string, error) {
	f := xlsx.NewFile()

	if err := e.addRunsSheet(ctx, f); err != nil {
		return "", err
	}
	jobNos, err := e.addItemsSheet(ctx, f, firmID)
	if err != nil {
		return "", err
	}
	if err := e.addWeightsSheet(ctx, f, jobNos); err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "report: create output dir")
	}
	path := filepath.Join(e.outputDir,
		fmt.Sprintf("hallmark-report-%s.xlsx", e.now().Format("20060102-150405")))
	if err := f.Save(path); err != nil {
		return "", eris.Wrap(err, "report: save workbook")
	}
	return path, nil
}

func headerRow(sheet *xlsx.Sheet, titles ...string) {
	row := sheet.AddRow()
	for _, t := range titles {
		row.AddCell().SetString(t)
	}
}

func (e *Exporter) addRunsSheet(ctx context.Context, f *xlsx.File) error {
	sheet, err := f.AddSheet("Runs")
	if err != nil {
		return eris.Wrap(err, "report: add runs sheet")
	}
	headerRow(sheet, "Run ID", "Kind", "Firm", "Status",
		"Succeeded", "Failed", "Partial", "Skipped", "Started", "Finished")

	runs, err := e.store.ListRuns(ctx, store.RunFilter{})
	if err != nil {
		return eris.Wrap(err, "report: list runs")
	}
	for _, r := range runs {
		row := sheet.AddRow()
		row.AddCell().SetString(r.ID)
		row.AddCell().SetString(string(r.Kind))
		row.AddCell().SetString(r.FirmID)
		row.AddCell().SetString(string(r.Status))
		row.AddCell().SetInt(r.Summary.Succeeded)
		row.AddCell().SetInt(r.Summary.Failed)
		row.AddCell().SetInt(r.Summary.Partial)
		row.AddCell().SetInt(r.Summary.Skipped)
		row.AddCell().SetString(r.StartedAt.Format(time.RFC3339))
		if r.FinishedAt != nil {
			row.AddCell().SetString(r.FinishedAt.Format(time.RFC3339))
		} else {
			row.AddCell().SetString("")
		}
	}
	return nil
}

func (e *Exporter) addItemsSheet(ctx context.Context, f *xlsx.File, firmID string) ([]string, error) {
	sheet, err := f.AddSheet("Items")
	if err != nil {
		return nil, eris.Wrap(err, "report: add items sheet")
	}
	headerRow(sheet, "Request No", "Item Category", "Pieces",
		"Declared Purity", "Declared Weight", "Job No", "Firm", "Status")

	items, err := e.store.ListPendingItems(ctx, store.ItemFilter{FirmID: firmID})
	if err != nil {
		return nil, eris.Wrap(err, "report: list items")
	}

	seen := make(map[string]bool)
	var jobNos []string
	for _, it := range items {
		row := sheet.AddRow()
		row.AddCell().SetString(it.RequestNo)
		row.AddCell().SetString(it.ItemCategory)
		row.AddCell().SetInt(it.Pieces)
		row.AddCell().SetString(it.DeclaredPurity)
		row.AddCell().SetFloatWithFormat(it.DeclaredWeight, weightFormat)
		row.AddCell().SetString(it.JobNo)
		row.AddCell().SetString(it.FirmID)
		row.AddCell().SetString(string(it.Status))

		if it.Matched() && !seen[it.JobNo] {
			seen[it.JobNo] = true
			jobNos = append(jobNos, it.JobNo)
		}
	}
	return jobNos, nil
}

func (e *Exporter) addWeightsSheet(ctx context.Context, f *xlsx.File, jobNos []string) error {
	sheet, err := f.AddSheet("Weights")
	if err != nil {
		return eris.Wrap(err, "report: add weights sheet")
	}
	headerRow(sheet, "Job No", "Tag No", "Weight (gms)", "HUID")

	if len(jobNos) == 0 {
		return nil
	}
	entries, err := e.store.WeightEntries(ctx, jobNos)
	if err != nil {
		return eris.Wrap(err, "report: load weights")
	}

	// Map iteration order is random; the workbook must not be.
	jobs := make([]string, 0, len(entries))
	for job := range entries {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	for _, job := range jobs {
		tags := make([]string, 0, len(entries[job]))
		for tag := range entries[job] {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		for _, tag := range tags {
			entry := entries[job][tag]
			row := sheet.AddRow()
			row.AddCell().SetString(job)
			row.AddCell().SetString(tag)
			row.AddCell().SetFloatWithFormat(entry.Weight, weightFormat)
			row.AddCell().SetString(entry.HUID)
		}
	}
	return nil
}

// WriteAssayWorksheet saves a single-sheet workbook holding one
// qualification worksheet, mirroring the paper form the lab fills in.
func WriteAssayWorksheet(path string, in assay.Input, res *assay.Result) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Assay")
	if err != nil {
		return eris.Wrap(err, "report: add assay sheet")
	}

	headerRow(sheet, "Channel", "Initial (mg)", "Cornet (mg)", "Fineness")
	for i := 0; i < 2; i++ {
		row := sheet.AddRow()
		row.AddCell().SetString(fmt.Sprintf("Strip %d", i+1))
		row.AddCell().SetFloatWithFormat(in.StripInitial[i], weightFormat)
		row.AddCell().SetFloatWithFormat(in.StripCornet[i], weightFormat)
		row.AddCell().SetFloatWithFormat(res.Fineness[i], "0.00")
	}
	for i := 0; i < 2; i++ {
		row := sheet.AddRow()
		row.AddCell().SetString(fmt.Sprintf("Check %d", i+1))
		row.AddCell().SetFloatWithFormat(in.CheckInitial[i], weightFormat)
		row.AddCell().SetFloatWithFormat(in.CheckCornet[i], weightFormat)
		row.AddCell().SetString("")
	}

	summary := [][2]string{
		{"Avg Delta", fmt.Sprintf("%.3f", res.AvgDelta)},
		{"Mean Fineness", fmt.Sprintf("%.2f", res.MeanFineness)},
		{"Variation", fmt.Sprintf("%.2f", res.Variation)},
		{"Threshold", fmt.Sprintf("%.1f", in.PurityThreshold)},
		{"Result", string(res.Classification)},
	}
	sheet.AddRow()
	for _, pair := range summary {
		row := sheet.AddRow()
		row.AddCell().SetString(pair[0])
		row.AddCell().SetString(pair[1])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "report: create output dir")
	}
	return eris.Wrap(f.Save(path), "report: save assay worksheet")
}
