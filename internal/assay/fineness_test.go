package assay

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// baseInput is a representative 22K gold qualification measurement.
func baseInput() Input {
	return Input{
		StripInitial:    [2]float64{480.000, 480.000},
		StripCornet:     [2]float64{459.800, 458.900},
		CheckInitial:    [2]float64{500.000, 500.000},
		CheckCornet:     [2]float64{497.500, 497.300},
		PurityThreshold: 916.0,
	}
}

func TestQualify_Pass(t *testing.T) {
	res, err := Qualify(baseInput())
	require.NoError(t, err)

	assert.InDelta(t, 2.5, res.Delta[0], 1e-9)
	assert.InDelta(t, 2.7, res.Delta[1], 1e-9)
	assert.InDelta(t, 2.600, res.AvgDelta, 1e-9)
	assert.InDelta(t, 963.333, res.Fineness[0], 1e-3)
	assert.InDelta(t, 961.458, res.Fineness[1], 1e-3)
	assert.InDelta(t, 962.396, res.MeanFineness, 1e-3)
	assert.InDelta(t, 1.875, res.Variation, 1e-3)
	assert.Equal(t, Pass, res.Classification)
}

func TestQualify_RepeatOnVariation(t *testing.T) {
	in := baseInput()
	in.StripCornet[1] = 450.000

	res, err := Qualify(in)
	require.NoError(t, err)

	assert.InDelta(t, 963.333, res.Fineness[0], 1e-3)
	assert.InDelta(t, 943.333, res.Fineness[1], 1e-3)
	assert.InDelta(t, 20.0, res.Variation, 1e-3)
	// Variation is checked before anything else, even though the second
	// strip is clear of the threshold.
	assert.Equal(t, Repeat, res.Classification)
}

func TestQualify_FailBelowThreshold(t *testing.T) {
	in := baseInput()
	in.StripCornet[0] = 430.000
	in.StripCornet[1] = 428.500

	res, err := Qualify(in)
	require.NoError(t, err)

	assert.InDelta(t, 901.25, res.Fineness[0], 1e-2)
	assert.InDelta(t, 898.125, res.Fineness[1], 1e-3)
	assert.LessOrEqual(t, res.Variation, MaxFinenessVariation)
	assert.Equal(t, Fail, res.Classification)
}

func TestQualify_NonPositiveInitialWeight(t *testing.T) {
	in := baseInput()
	in.StripInitial[0] = 0

	_, err := Qualify(in)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNonPositiveWeight))
}

func TestClassify_MeanMargin(t *testing.T) {
	tests := []struct {
		name      string
		f1, f2    float64
		threshold float64
		want      Classification
	}{
		{"mean exactly at threshold fails", 916.0, 916.0, 916.0, Fail},
		{"mean at threshold plus margin passes", 916.1, 916.1, 916.0, Pass},
		{"mean just under margin fails", 916.05, 916.05, 916.0, Fail},
		{"single strip below threshold fails", 915.9, 918.0, 916.0, Fail},
		{"variation above cap repeats", 920.0, 925.0, 916.0, Repeat},
		{"variation exactly at cap does not repeat", 918.0, 922.0, 916.0, Pass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.f1, tt.f2, tt.threshold))
		})
	}
}

func TestCorrectedFineness(t *testing.T) {
	f, err := CorrectedFineness(480.0, 459.8, 2.6)
	require.NoError(t, err)
	assert.InDelta(t, 963.333, f, 1e-3)

	_, err = CorrectedFineness(-1, 459.8, 2.6)
	assert.Error(t, err)
}

func TestQualify_Deterministic(t *testing.T) {
	first, err := Qualify(baseInput())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Qualify(baseInput())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
