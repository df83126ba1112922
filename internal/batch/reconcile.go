package batch

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/assayworks/hallmark-cli/internal/config"
	"github.com/assayworks/hallmark-cli/internal/match"
	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/progress"
	"github.com/assayworks/hallmark-cli/internal/scan"
)

// scanConfig translates the file configuration into one list-scan pass.
func scanConfig(listURL string, sc config.ScanConfig) scan.Config {
	cfg := scan.DefaultConfig(listURL)
	if sc.PageCap > 0 {
		cfg.PageCap = sc.PageCap
	}
	if sc.RatePerSec > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Limit(sc.RatePerSec), 1)
	}
	if sc.AdvanceTimeout > 0 {
		cfg.AdvanceWait = time.Duration(sc.AdvanceTimeout) * time.Second
	}
	cfg.SkipCompleted = sc.SkipCompleted
	return cfg
}

func jobCardConfig(listURL string, sc config.ScanConfig) scan.JobCardConfig {
	cfg := scan.DefaultJobCardConfig(listURL)
	if sc.RatePerSec > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Limit(sc.RatePerSec), 1)
	}
	return cfg
}

// RunScan walks the completed-jobs list once and records the pass. Every
// well-formed record counts as succeeded; malformed rows never surface
// here, the scanner drops them during parsing.
func (r *Runner) RunScan(ctx context.Context, firmID, listURL string) ([]model.RemoteJobRecord, *model.BatchRun, error) {
	var records []model.RemoteJobRecord

	run, err := r.record(ctx, model.RunKindScan, firmID, func(ctx context.Context, tr *progress.Tracker) error {
		scanner := scan.NewScanner(r.session, scanConfig(listURL, r.cfg.Scan))
		return scanner.Scan(ctx, func(rec model.RemoteJobRecord) error {
			records = append(records, rec)
			tr.Succeeded()
			tr.Progress(len(records), 0, "scanned "+rec.JobNo)
			return nil
		})
	})
	if err != nil {
		return records, run, eris.Wrap(err, "batch: scan")
	}
	return records, run, nil
}

// RunReconcile assigns job numbers to pending items. For every request
// holding unmatched items, the job-card scanner reads (job number, item
// category) pairs off the portal and the matcher scores them against the
// request's candidates. The tally is per request: succeeded when every
// item got a job number, partial when some did, skipped when the request
// is absent from the portal or nothing scored above threshold.
func (r *Runner) RunReconcile(ctx context.Context, firmID, listURL string) (*model.BatchRun, error) {
	return r.record(ctx, model.RunKindReconcile, firmID, func(ctx context.Context, tr *progress.Tracker) error {
		pending, err := r.store.PendingByRequest(ctx, firmID)
		if err != nil {
			return eris.Wrap(err, "batch: load pending items")
		}
		if len(pending) == 0 {
			tr.Log("no unmatched items, nothing to reconcile")
			return nil
		}

		requests := make([]string, 0, len(pending))
		for reqNo := range pending {
			requests = append(requests, reqNo)
		}
		sort.Strings(requests)

		scanner := scan.NewJobCardScanner(r.session, jobCardConfig(listURL, r.cfg.Scan))
		matcher := match.NewMatcher(r.store)
		processed := make(map[string]struct{})

		for i, reqNo := range requests {
			tr.Progress(i+1, len(requests), "reconciling request "+reqNo)

			records, err := scanner.ScanRequest(ctx, reqNo)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				tr.Failed()
				continue
			}
			if len(records) == 0 {
				tr.Skipped()
				continue
			}

			candidates := pending[reqNo]
			matched, storeFailed := 0, false
			for _, rec := range records {
				item, err := matcher.Match(ctx, rec, candidates, processed)
				if err != nil {
					storeFailed = true
					continue
				}
				if item != nil {
					matched++
				}
			}

			switch {
			case storeFailed:
				tr.Failed()
			case matched == len(candidates):
				tr.Succeeded()
			case matched > 0:
				tr.Partial()
			default:
				tr.Skipped()
			}
		}
		return nil
	})
}
