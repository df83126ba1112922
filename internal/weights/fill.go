package weights

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
)

// DefaultIterationCap bounds the convergence loop. The remote table can
// shrink, reorder, or refresh after every save, so the loop re-observes
// until nothing is left to fill; the cap guarantees termination against a
// surface we do not control.
const DefaultIterationCap = 50

// Row is one observed line of the weighing table.
type Row struct {
	TagNo string
	// Filled reports a pre-existing, non-empty weight on the remote side,
	// detected from rendered text or a disabled input carrying a value.
	Filled bool
	// Fill types the weight, triggers the row's save action, and accepts
	// any confirmation prompt. Present only on fillable rows.
	Fill func(ctx context.Context, weight float64) error
}

// Observer re-reads the remote table. Fill calls Observe again after every
// mutating save; implementations must return current state, never a cached
// row list.
type Observer interface {
	Observe(ctx context.Context) ([]Row, error)
}

// Result is the outcome of one fill pass over one job.
type Result struct {
	JobNo     string `json:"job_no"`
	Expected  int    `json:"expected"`
	Filled    int    `json:"filled"`
	Processed int    `json:"processed"`
	// Converged is false when the iteration cap cut the pass short; the
	// counts above still stand (partial success, not an error).
	Converged bool `json:"converged"`
	// Missing lists expected tags the remote table never accounted for. A
	// converged pass with missing tags means the portal surface ran dry,
	// not that every tag was handled.
	Missing []string `json:"missing,omitempty"`
}

// Complete reports a converged pass that accounted for every expected tag.
func (r Result) Complete() bool {
	return r.Converged && len(r.Missing) == 0
}

// Filler runs the convergence loop.
type Filler struct {
	settle       time.Duration
	iterationCap int
}

// NewFiller creates a Filler with the given settle delay between a save
// and the next observation. cap <= 0 uses DefaultIterationCap.
func NewFiller(settle time.Duration, iterationCap int) *Filler {
	if iterationCap <= 0 {
		iterationCap = DefaultIterationCap
	}
	return &Filler{settle: settle, iterationCap: iterationCap}
}

// Fill applies cached weights for one job until no unfilled known tag
// remains, all expected tags are accounted for, or the iteration cap hits.
//
// Every iteration re-observes, walks the rows in order, and on the first
// unfilled row with a known weight fills it and breaks back to observation:
// a save mutates the table, so the rest of the row list is stale. Rows with
// pre-existing weights count as processed without counting as filled, and
// are never re-filled. A single row's failure abandons that row for the
// pass, never the job.
func (f *Filler) Fill(ctx context.Context, jobNo string, entries map[string]model.WeightEntry, obs Observer) (Result, error) {
	res := Result{JobNo: jobNo, Expected: len(entries)}
	if res.Expected == 0 {
		res.Converged = true
		return res, nil
	}

	processed := make(map[string]struct{})
	abandoned := make(map[string]struct{})

	for iteration := 1; iteration <= f.iterationCap; iteration++ {
		if err := ctx.Err(); err != nil {
			res.Processed = len(processed)
			return res, err
		}

		rows, err := obs.Observe(ctx)
		if err != nil {
			res.Processed = len(processed)
			return res, err
		}

		filledThisPass := false
		for _, row := range rows {
			entry, known := entries[row.TagNo]
			if !known {
				continue
			}
			if _, done := processed[row.TagNo]; done {
				continue
			}
			if _, skip := abandoned[row.TagNo]; skip {
				continue
			}
			if row.Filled {
				zap.L().Debug("weights: tag already filled remotely",
					zap.String("job_no", jobNo),
					zap.String("tag_no", row.TagNo),
				)
				processed[row.TagNo] = struct{}{}
				continue
			}
			if row.Fill == nil {
				// No input on an unfilled row: saved out from under us.
				processed[row.TagNo] = struct{}{}
				continue
			}

			if err := row.Fill(ctx, entry.Weight); err != nil {
				zap.L().Warn("weights: row fill failed, abandoning for this pass",
					zap.String("job_no", jobNo),
					zap.String("tag_no", row.TagNo),
					zap.Error(err),
				)
				abandoned[row.TagNo] = struct{}{}
				continue
			}

			processed[row.TagNo] = struct{}{}
			res.Filled++
			filledThisPass = true
			zap.L().Info("weights: tag filled",
				zap.String("job_no", jobNo),
				zap.String("tag_no", row.TagNo),
				zap.Float64("weight", entry.Weight),
			)

			// The save mutated the table; re-observe before touching
			// anything else.
			if err := portal.Settle(ctx, f.settle); err != nil {
				res.Processed = len(processed)
				return res, err
			}
			break
		}

		if len(processed) >= res.Expected {
			res.Processed = len(processed)
			res.Converged = true
			return res, nil
		}
		if !filledThisPass {
			// Nothing fillable appeared, yet tags remain unaccounted for:
			// the remote table never surfaced them, or their fills failed.
			res.Processed = len(processed)
			res.Converged = true
			res.Missing = missingTags(entries, processed)
			zap.L().Info("weights: portal surface exhausted before all tags seen",
				zap.String("job_no", jobNo),
				zap.Strings("missing", res.Missing),
			)
			return res, nil
		}
	}

	res.Processed = len(processed)
	res.Missing = missingTags(entries, processed)
	zap.L().Warn("weights: iteration cap reached before convergence",
		zap.String("job_no", jobNo),
		zap.Int("cap", f.iterationCap),
		zap.Int("filled", res.Filled),
		zap.Int("expected", res.Expected),
	)
	return res, nil
}

// missingTags returns the expected tags not in processed, sorted for
// stable logs.
func missingTags(entries map[string]model.WeightEntry, processed map[string]struct{}) []string {
	var missing []string
	for tag := range entries {
		if _, ok := processed[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	sort.Strings(missing)
	return missing
}
