// Package assay implements the delta/fineness arithmetic used to qualify a
// fire-assay result. Everything here is pure: the same inputs always produce
// the same result, and nothing touches the portal or the store.
package assay

import (
	"math"

	"github.com/rotisserie/eris"
)

// Qualification thresholds. Variation between the two strips above
// MaxFinenessVariation forces a repeat regardless of the mean; a passing mean
// must clear the purity threshold by MeanFinenessMargin.
const (
	MaxFinenessVariation = 4.0
	MeanFinenessMargin   = 0.1
)

// ErrNonPositiveWeight is returned when a strip's initial weight is zero or
// negative. This is a data-quality problem, not a transient one.
var ErrNonPositiveWeight = eris.New("assay: non-positive initial weight")

// Classification is the outcome of qualifying one measurement pair.
type Classification string

const (
	Pass   Classification = "PASS"
	Fail   Classification = "FAIL"
	Repeat Classification = "REPEAT"
)

// Input holds one qualification measurement: two sample strips and two
// check (proof) channels, all as initial/cornet weight pairs in milligrams.
// PurityThreshold is on the per-mille (0-1000) fineness scale; an operator
// qualifying 22K gold enters 916.0, not 91.6.
type Input struct {
	StripInitial    [2]float64 `json:"strip_initial"`
	StripCornet     [2]float64 `json:"strip_cornet"`
	CheckInitial    [2]float64 `json:"check_initial"`
	CheckCornet     [2]float64 `json:"check_cornet"`
	PurityThreshold float64    `json:"purity_threshold"`
}

// Result carries every intermediate figure alongside the classification so
// callers can render or persist the full worksheet.
type Result struct {
	Delta          [2]float64     `json:"delta"`
	AvgDelta       float64        `json:"avg_delta"`
	Fineness       [2]float64     `json:"fineness"`
	MeanFineness   float64        `json:"mean_fineness"`
	Variation      float64        `json:"variation"`
	Classification Classification `json:"classification"`
}

// Delta is the weight lost (or gained) across one channel's assay.
func Delta(initial, cornet float64) float64 {
	return initial - cornet
}

// AvgDelta averages the two check-channel deltas into the correction term
// applied to both strips.
func AvgDelta(deltaC1, deltaC2 float64) float64 {
	return (deltaC1 + deltaC2) / 2
}

// CorrectedFineness computes a strip's fineness on the per-mille scale after
// applying the average check-channel delta as a correction.
func CorrectedFineness(stripInitial, stripCornet, avgDelta float64) (float64, error) {
	if stripInitial <= 0 {
		return 0, ErrNonPositiveWeight
	}
	return ((stripCornet + avgDelta) / stripInitial) * 1000, nil
}

// Classify applies the qualification rules in fixed order: excessive
// variation wins over everything, then any single strip below threshold
// fails, then the mean must clear the threshold by the margin.
func Classify(fineness1, fineness2, purityThreshold float64) Classification {
	variation := math.Abs(fineness1 - fineness2)
	if variation > MaxFinenessVariation {
		return Repeat
	}
	if fineness1 < purityThreshold || fineness2 < purityThreshold {
		return Fail
	}
	mean := (fineness1 + fineness2) / 2
	if mean >= purityThreshold+MeanFinenessMargin {
		return Pass
	}
	return Fail
}

// Qualify runs the full worksheet for one measurement set.
func Qualify(in Input) (*Result, error) {
	res := &Result{}
	res.Delta[0] = Delta(in.CheckInitial[0], in.CheckCornet[0])
	res.Delta[1] = Delta(in.CheckInitial[1], in.CheckCornet[1])
	res.AvgDelta = AvgDelta(res.Delta[0], res.Delta[1])

	for i := 0; i < 2; i++ {
		f, err := CorrectedFineness(in.StripInitial[i], in.StripCornet[i], res.AvgDelta)
		if err != nil {
			return nil, eris.Wrapf(err, "assay: strip %d", i+1)
		}
		res.Fineness[i] = f
	}

	res.MeanFineness = (res.Fineness[0] + res.Fineness[1]) / 2
	res.Variation = math.Abs(res.Fineness[0] - res.Fineness[1])
	res.Classification = Classify(res.Fineness[0], res.Fineness[1], in.PurityThreshold)
	return res, nil
}
