package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/assayworks/hallmark-cli/internal/assay"
	"github.com/assayworks/hallmark-cli/internal/report"
)

var (
	assayStripInitial []float64
	assayStripCornet  []float64
	assayCheckInitial []float64
	assayCheckCornet  []float64
	assayThreshold    float64
	assayOut          string
)

var assayCmd = &cobra.Command{
	Use:   "assay",
	Short: "Qualify one fire-assay measurement pair",
	Long:  "Computes check-channel deltas, corrected strip fineness, and the PASS/FAIL/REPEAT classification for one measurement set. Weights are milligrams; the threshold is per-mille (916.0 for 22K gold).",
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := assayInput()
		if err != nil {
			return err
		}

		res, err := assay.Qualify(in)
		if err != nil {
			return err
		}

		fmt.Printf("Delta C1:       %8.3f mg\n", res.Delta[0])
		fmt.Printf("Delta C2:       %8.3f mg\n", res.Delta[1])
		fmt.Printf("Avg delta:      %8.3f mg\n", res.AvgDelta)
		fmt.Printf("Fineness S1:    %8.2f\n", res.Fineness[0])
		fmt.Printf("Fineness S2:    %8.2f\n", res.Fineness[1])
		fmt.Printf("Mean fineness:  %8.2f\n", res.MeanFineness)
		fmt.Printf("Variation:      %8.2f\n", res.Variation)
		fmt.Printf("Threshold:      %8.1f\n", in.PurityThreshold)
		fmt.Printf("Result:         %s\n", res.Classification)

		if assayOut != "" {
			if err := report.WriteAssayWorksheet(assayOut, in, res); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "worksheet written to %s\n", assayOut)
		}
		return nil
	},
}

func assayInput() (assay.Input, error) {
	pairs := map[string][]float64{
		"strip-initial": assayStripInitial,
		"strip-cornet":  assayStripCornet,
		"check-initial": assayCheckInitial,
		"check-cornet":  assayCheckCornet,
	}
	for name, vals := range pairs {
		if len(vals) != 2 {
			return assay.Input{}, eris.Errorf("--%s needs exactly two values, got %d", name, len(vals))
		}
	}

	threshold := assayThreshold
	if threshold == 0 {
		threshold = cfg.Assay.PurityThreshold
	}
	if threshold <= 0 || threshold > 1000 {
		return assay.Input{}, eris.Errorf("purity threshold %.1f outside the per-mille scale (0, 1000]", threshold)
	}

	return assay.Input{
		StripInitial:    [2]float64{assayStripInitial[0], assayStripInitial[1]},
		StripCornet:     [2]float64{assayStripCornet[0], assayStripCornet[1]},
		CheckInitial:    [2]float64{assayCheckInitial[0], assayCheckInitial[1]},
		CheckCornet:     [2]float64{assayCheckCornet[0], assayCheckCornet[1]},
		PurityThreshold: threshold,
	}, nil
}

func init() {
	assayCmd.Flags().Float64SliceVar(&assayStripInitial, "strip-initial", nil, "initial weights of sample strips 1,2 (mg)")
	assayCmd.Flags().Float64SliceVar(&assayStripCornet, "strip-cornet", nil, "cornet weights of sample strips 1,2 (mg)")
	assayCmd.Flags().Float64SliceVar(&assayCheckInitial, "check-initial", nil, "initial weights of check channels 1,2 (mg)")
	assayCmd.Flags().Float64SliceVar(&assayCheckCornet, "check-cornet", nil, "cornet weights of check channels 1,2 (mg)")
	assayCmd.Flags().Float64Var(&assayThreshold, "threshold", 0, "per-mille purity threshold (default from config)")
	assayCmd.Flags().StringVar(&assayOut, "out", "", "write the worksheet to this XLSX file")
	_ = assayCmd.MarkFlagRequired("strip-initial")
	_ = assayCmd.MarkFlagRequired("strip-cornet")
	_ = assayCmd.MarkFlagRequired("check-initial")
	_ = assayCmd.MarkFlagRequired("check-cornet")
	rootCmd.AddCommand(assayCmd)
}
