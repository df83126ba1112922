package batch

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
	"github.com/assayworks/hallmark-cli/internal/progress"
	"github.com/assayworks/hallmark-cli/internal/store"
	"github.com/assayworks/hallmark-cli/internal/weights"
)

// FillTarget names one job to run the convergence fill on.
type FillTarget struct {
	RequestNo string         `yaml:"request_no" json:"request_no"`
	JobNo     string         `yaml:"job_no" json:"job_no"`
	Material  model.Material `yaml:"material,omitempty" json:"material,omitempty"`
	ItemID    int64          `yaml:"item_id,omitempty" json:"item_id,omitempty"`
}

// TargetsFromStore builds fill targets from every matched item of a firm.
func (r *Runner) TargetsFromStore(ctx context.Context, firmID string) ([]FillTarget, error) {
	items, err := r.store.ListPendingItems(ctx, store.ItemFilter{
		FirmID: firmID,
		Status: model.ItemStatusMatched,
	})
	if err != nil {
		return nil, eris.Wrap(err, "batch: list matched items")
	}

	targets := make([]FillTarget, 0, len(items))
	for _, it := range items {
		targets = append(targets, FillTarget{
			RequestNo: it.RequestNo,
			JobNo:     it.JobNo,
			Material:  materialFor(it),
			ItemID:    it.ID,
		})
	}
	return targets, nil
}

// materialFor guesses the metal from the item text. The weighing form only
// branches on silver and platinum; everything else takes the gold route.
func materialFor(it model.PendingItem) model.Material {
	text := strings.ToLower(it.ItemCategory + " " + it.DeclaredPurity)
	switch {
	case strings.Contains(text, "silver") || strings.Contains(text, "925"):
		return model.MaterialSilver
	case strings.Contains(text, "platinum"):
		return model.MaterialPlatinum
	default:
		return model.MaterialGold
	}
}

// fillOutcome carries one job's portal results to the store write-back.
type fillOutcome struct {
	target    FillTarget
	result    weights.Result
	huidCodes map[string]string
	submitted bool
	failed    bool
}

// RunFill runs the convergence fill over each target in order. The portal
// session stays serialized; store write-backs (HUID codes, item statuses)
// fan out on a bounded group so a slow database never stalls the browser.
func (r *Runner) RunFill(ctx context.Context, firmID string, targets []FillTarget) (*model.BatchRun, error) {
	return r.record(ctx, model.RunKindFill, firmID, func(ctx context.Context, tr *progress.Tracker) error {
		jobNos := make([]string, 0, len(targets))
		for _, t := range targets {
			jobNos = append(jobNos, t.JobNo)
		}

		cache, err := weights.Preload(ctx, r.store, jobNos)
		if err != nil {
			return err
		}
		tr.Logf("preloaded %d weights for %d jobs", cache.Known(), len(targets))

		filler := weights.NewFiller(r.cfg.Fill.Settle(), r.cfg.Fill.IterationCap)

		g, gctx := errgroup.WithContext(ctx)
		workers := r.cfg.Batch.MaxStoreWorkers
		if workers <= 0 {
			workers = 1
		}
		g.SetLimit(workers)

		for i, target := range targets {
			if err := ctx.Err(); err != nil {
				break
			}
			tr.Progress(i+1, len(targets), "filling "+target.JobNo)

			entries := cache.Job(target.JobNo)
			if len(entries) == 0 {
				tr.Log("no cached weights for " + target.JobNo + ", skipping")
				tr.Skipped()
				continue
			}

			outcome := r.fillOne(ctx, filler, target, entries)
			switch {
			case outcome.failed:
				tr.Failed()
			case outcome.result.Complete():
				tr.Succeeded()
			default:
				tr.Partial()
			}

			g.Go(func() error {
				r.writeBack(gctx, outcome)
				return nil
			})
		}

		return g.Wait()
	})
}

// fillOne drives the weighing form for one job inside the session lock.
func (r *Runner) fillOne(ctx context.Context, filler *weights.Filler, target FillTarget, entries map[string]model.WeightEntry) fillOutcome {
	out := fillOutcome{target: target}

	err := r.session.UseContext(ctx, func(d portal.Driver) error {
		obs := r.newObserver(d)
		if err := obs.Open(ctx, target.RequestNo, target.JobNo, target.Material); err != nil {
			return err
		}

		res, err := filler.Fill(ctx, target.JobNo, entries, obs)
		out.result = res
		if err != nil {
			return err
		}

		if r.cfg.Fill.HarvestHUID && res.Processed > 0 {
			codes, err := obs.HUIDCodes(ctx)
			if err != nil {
				zap.L().Warn("batch: huid harvest failed",
					zap.String("job_no", target.JobNo),
					zap.Error(err),
				)
			} else {
				out.huidCodes = codes
			}
		}

		if r.cfg.Fill.SubmitForDelivery && res.Complete() {
			submitted, err := obs.SubmitForDelivery(ctx)
			if err != nil {
				zap.L().Warn("batch: submit for delivery failed",
					zap.String("job_no", target.JobNo),
					zap.Error(err),
				)
			}
			out.submitted = submitted
		}
		return nil
	})
	if err != nil {
		zap.L().Error("batch: fill failed",
			zap.String("job_no", target.JobNo),
			zap.Error(err),
		)
		out.failed = true
	}
	return out
}

// writeBack persists one job's outcome. Errors are logged, never fatal:
// the portal already holds the weights, a missed status update only costs
// a redundant pass later.
func (r *Runner) writeBack(ctx context.Context, out fillOutcome) {
	if len(out.huidCodes) > 0 {
		if n, err := r.store.UpdateHUIDCodes(ctx, out.target.JobNo, out.huidCodes); err != nil {
			zap.L().Warn("batch: save huid codes",
				zap.String("job_no", out.target.JobNo),
				zap.Error(err),
			)
		} else if n > 0 {
			zap.L().Info("batch: huid codes saved",
				zap.String("job_no", out.target.JobNo),
				zap.Int("updated", n),
			)
		}
	}

	if out.target.ItemID == 0 {
		return
	}
	status := model.ItemStatusWeighing
	switch {
	case out.failed:
		status = model.ItemStatusFailed
	case out.submitted:
		status = model.ItemStatusSubmitted
	case out.result.Complete():
		status = model.ItemStatusWeighed
	}
	if err := r.store.UpdateItemStatus(ctx, out.target.ItemID, status); err != nil {
		zap.L().Warn("batch: update item status",
			zap.Int64("item_id", out.target.ItemID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
