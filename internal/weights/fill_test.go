package weights

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assayworks/hallmark-cli/internal/model"
)

// scriptObserver simulates the remote weighing table: filling a tag
// mutates the table the way a portal save does.
type scriptObserver struct {
	tags     []string
	filled   map[string]bool
	failTags map[string]bool

	observations int
	fills        map[string]int
}

func newScriptObserver(tags ...string) *scriptObserver {
	return &scriptObserver{
		tags:     tags,
		filled:   map[string]bool{},
		failTags: map[string]bool{},
		fills:    map[string]int{},
	}
}

func (s *scriptObserver) Observe(context.Context) ([]Row, error) {
	s.observations++
	var rows []Row
	for _, tag := range s.tags {
		row := Row{TagNo: tag, Filled: s.filled[tag]}
		if !row.Filled {
			tag := tag
			row.Fill = func(context.Context, float64) error {
				if s.failTags[tag] {
					return eris.New("save control missing")
				}
				s.fills[tag]++
				s.filled[tag] = true
				return nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func entriesFor(tags ...string) map[string]model.WeightEntry {
	m := make(map[string]model.WeightEntry, len(tags))
	for i, tag := range tags {
		m[tag] = model.WeightEntry{Weight: float64(i+1) * 1.5}
	}
	return m
}

func TestFill_ConvergesAndCountsNewFills(t *testing.T) {
	obs := newScriptObserver("T1", "T2", "T3")
	f := NewFiller(0, 0)

	res, err := f.Fill(context.Background(), "120000001", entriesFor("T1", "T2", "T3"), obs)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Filled)
	assert.Equal(t, 3, res.Processed)
	assert.True(t, res.Converged)
	assert.True(t, res.Complete())
	assert.Empty(t, res.Missing)
	// One observation per fill: the loop breaks back to re-observation
	// after every mutating save.
	assert.Equal(t, 3, obs.observations)
}

func TestFill_NoDoubleFill(t *testing.T) {
	obs := newScriptObserver("T1", "T2")
	f := NewFiller(0, 0)

	_, err := f.Fill(context.Background(), "120000001", entriesFor("T1", "T2"), obs)
	require.NoError(t, err)

	for tag, n := range obs.fills {
		assert.Equal(t, 1, n, "tag %s written more than once", tag)
	}
}

func TestFill_PreFilledTagsProcessedNotCounted(t *testing.T) {
	obs := newScriptObserver("T1", "T2", "T3")
	obs.filled["T2"] = true
	f := NewFiller(0, 0)

	res, err := f.Fill(context.Background(), "120000001", entriesFor("T1", "T2", "T3"), obs)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Filled, "pre-filled tag must not count as newly filled")
	assert.Equal(t, 3, res.Processed)
	assert.True(t, res.Converged)
	assert.Zero(t, obs.fills["T2"])
}

func TestFill_SkipsTagsWithoutCachedWeight(t *testing.T) {
	obs := newScriptObserver("T1", "T2", "T3")
	f := NewFiller(0, 0)

	res, err := f.Fill(context.Background(), "120000001", entriesFor("T1", "T3"), obs)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Filled)
	assert.Zero(t, obs.fills["T2"])
	assert.True(t, res.Converged)
}

func TestFill_RowErrorAbandonsRowNotJob(t *testing.T) {
	obs := newScriptObserver("T1", "T2", "T3")
	obs.failTags["T2"] = true
	f := NewFiller(0, 0)

	res, err := f.Fill(context.Background(), "120000001", entriesFor("T1", "T2", "T3"), obs)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Filled)
	assert.True(t, res.Converged, "a row abandoned for the pass still lets the loop finish")
	assert.False(t, res.Complete())
	assert.Equal(t, []string{"T2"}, res.Missing)
	assert.Equal(t, 1, obs.fills["T1"])
	assert.Equal(t, 1, obs.fills["T3"])
}

func TestFill_IterationCapYieldsPartialResult(t *testing.T) {
	// More known weights than the cap allows iterations: each pass fills
	// exactly one tag, so the cap cuts the job short.
	obs := newScriptObserver("T1", "T2", "T3", "T4", "T5")
	f := NewFiller(0, 3)

	res, err := f.Fill(context.Background(), "120000001", entriesFor("T1", "T2", "T3", "T4", "T5"), obs)
	require.NoError(t, err, "cap exhaustion is a partial result, not an error")

	assert.False(t, res.Converged)
	assert.False(t, res.Complete())
	assert.Equal(t, 3, res.Filled)
	assert.Equal(t, []string{"T4", "T5"}, res.Missing)
	assert.Equal(t, 3, obs.observations)
}

func TestFill_EmptyCacheEntryIsNoop(t *testing.T) {
	obs := newScriptObserver("T1")
	f := NewFiller(0, 0)

	res, err := f.Fill(context.Background(), "120000001", nil, obs)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Zero(t, res.Filled)
	assert.Zero(t, obs.observations)
}

func TestFill_TerminatesWithinCap(t *testing.T) {
	// Rows that are never fillable and never filled: a full pass finds no
	// candidate and the loop stops on its first iteration.
	obs := observerFunc(func(context.Context) ([]Row, error) {
		return []Row{{TagNo: "T9"}}, nil
	})
	f := NewFiller(0, 0)

	res, err := f.Fill(context.Background(), "120000001", entriesFor("T1"), obs)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Zero(t, res.Filled)
	assert.False(t, res.Complete(), "T1 never appeared on the portal surface")
	assert.Equal(t, []string{"T1"}, res.Missing)
}

type observerFunc func(ctx context.Context) ([]Row, error)

func (f observerFunc) Observe(ctx context.Context) ([]Row, error) { return f(ctx) }
