// Package batch orchestrates the portal-facing passes: scanning the
// completed-jobs list, reconciling scanned jobs to pending items, and
// running the weight convergence fill. Each pass is recorded as a batch
// run in the store. Portal access is serialized through one Session; only
// store write-backs fan out.
package batch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/config"
	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
	"github.com/assayworks/hallmark-cli/internal/progress"
	"github.com/assayworks/hallmark-cli/internal/store"
	"github.com/assayworks/hallmark-cli/internal/weights"
)

// jobObserver is the slice of the weighing form the fill pass drives.
// FormObserver implements it; tests inject fakes.
type jobObserver interface {
	Open(ctx context.Context, requestNo, jobNo string, material model.Material) error
	Observe(ctx context.Context) ([]weights.Row, error)
	HUIDCodes(ctx context.Context) (map[string]string, error)
	SubmitForDelivery(ctx context.Context) (bool, error)
}

// Runner ties the scanner, matcher, and filler to one store and one
// portal session.
type Runner struct {
	cfg     *config.Config
	store   store.Store
	session *portal.Session
	sink    progress.Sink

	// newObserver builds the weighing-form observer for one driver.
	newObserver func(d portal.Driver) jobObserver
}

// NewRunner creates a Runner. sink may be nil; progress then goes to the
// zap logger.
func NewRunner(cfg *config.Config, st store.Store, session *portal.Session, sink progress.Sink) *Runner {
	if sink == nil {
		sink = progress.Logger{}
	}
	return &Runner{
		cfg:     cfg,
		store:   st,
		session: session,
		sink:    sink,
		newObserver: func(d portal.Driver) jobObserver {
			return weights.NewFormObserver(d, weights.DefaultFormConfig(cfg.Portal.BaseURL))
		},
	}
}

// record brackets fn with batch-run bookkeeping: a run row is created
// before and finished with the tracker's tally after, whether fn failed
// or not. The run keeps the partial tally on failure.
func (r *Runner) record(ctx context.Context, kind model.RunKind, firmID string, fn func(ctx context.Context, tr *progress.Tracker) error) (*model.BatchRun, error) {
	run, err := r.store.CreateRun(ctx, kind, firmID)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: create %s run", kind)
	}

	tr := progress.NewTracker(r.sink)
	runErr := fn(ctx, tr)

	summary := tr.Summary()
	if runErr != nil && summary.Failed == 0 {
		// A pass that died before tallying anything still reads as failed.
		summary.Failed++
	}
	if err := r.store.FinishRun(ctx, run.ID, summary); err != nil {
		zap.L().Warn("batch: finish run",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}

	run.Summary = summary
	run.Status = summary.Status()
	zap.L().Info("batch: run finished",
		zap.String("run_id", run.ID),
		zap.String("kind", string(kind)),
		zap.String("status", string(run.Status)),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("partial", summary.Partial),
		zap.Int("skipped", summary.Skipped),
	)
	return run, runErr
}
