package match

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/model"
)

// ItemUpdater is the single store capability the matcher needs: committing
// a job-number assignment to one pending item.
type ItemUpdater interface {
	AssignJobNo(ctx context.Context, itemID int64, jobNo string) error
}

// Matcher assigns scraped job numbers to pending items. A Matcher is not
// safe for concurrent use; reconciliation passes are serialized by the
// batch worker that owns the portal session.
type Matcher struct {
	store ItemUpdater
}

// NewMatcher creates a Matcher that commits assignments through store.
func NewMatcher(store ItemUpdater) *Matcher {
	return &Matcher{store: store}
}

// Match selects the best-scoring candidate for a scraped record and commits
// the assignment. processed is the per-pass consumption set: a job number
// already in it is never assigned again, and a successful match adds to it.
//
// Returns (nil, nil) when the record was already consumed or when no
// candidate clears the threshold; an unmatched record is logged for manual
// follow-up, not treated as an error. Ties on the maximum score go to the
// first candidate in input order.
func (m *Matcher) Match(ctx context.Context, remote model.RemoteJobRecord, candidates []*model.PendingItem, processed map[string]struct{}) (*model.PendingItem, error) {
	if _, done := processed[remote.JobNo]; done {
		zap.L().Debug("match: job number already consumed",
			zap.String("job_no", remote.JobNo),
		)
		return nil, nil
	}

	var best *model.PendingItem
	bestScore := 0.0
	for _, cand := range candidates {
		if cand.Matched() {
			continue
		}
		score := Score(cand.ItemCategory, remote.ItemCategoryText)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}

	if best == nil || bestScore <= MatchThreshold {
		zap.L().Info("match: no candidate above threshold",
			zap.String("job_no", remote.JobNo),
			zap.String("portal_item", remote.ItemCategoryText),
			zap.Float64("best_score", bestScore),
		)
		return nil, nil
	}

	if err := m.store.AssignJobNo(ctx, best.ID, remote.JobNo); err != nil {
		return nil, eris.Wrapf(err, "match: assign job %s to item %d", remote.JobNo, best.ID)
	}

	best.JobNo = remote.JobNo
	best.Status = model.ItemStatusMatched
	processed[remote.JobNo] = struct{}{}

	zap.L().Info("match: assigned job number",
		zap.String("job_no", remote.JobNo),
		zap.Int64("item_id", best.ID),
		zap.String("item", best.ItemCategory),
		zap.String("portal_item", remote.ItemCategoryText),
		zap.Float64("score", bestScore),
	)
	return best, nil
}
