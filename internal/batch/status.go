package batch

import (
	"sort"

	"github.com/assayworks/hallmark-cli/internal/model"
)

// Combined job states shown by the jobs listing. The portal's view and the
// store's view disagree routinely (a job weighed in the browser but whose
// status update was lost, a scan that saw a job before reconciliation ran);
// the combination makes the disagreement visible instead of hiding it.
const (
	JobCompleted   = "completed"
	JobReady       = "ready"
	JobNeedsValues = "needs-initial-values"
	JobUnmatched   = "unmatched"
)

// JobView is one row of the combined status listing.
type JobView struct {
	RequestNo    string
	JobNo        string
	ItemCategory string
	Pieces       int
	DBStatus     model.ItemStatus
	WeightsKnown int
	OnPortal     bool
	Combined     string
}

// CombineStatuses joins store items with cached-weight counts and the set
// of jobs a scan pass saw. weightsKnown maps job number to cached entry
// count; seen maps job number to its portal status text (nil when no scan
// ran). Rows come back sorted by request then job number.
func CombineStatuses(items []model.PendingItem, weightsKnown map[string]int, seen map[string]string) []JobView {
	views := make([]JobView, 0, len(items))
	for _, it := range items {
		v := JobView{
			RequestNo:    it.RequestNo,
			JobNo:        it.JobNo,
			ItemCategory: it.ItemCategory,
			Pieces:       it.Pieces,
			DBStatus:     it.Status,
		}
		if it.Matched() {
			v.WeightsKnown = weightsKnown[it.JobNo]
			_, v.OnPortal = seen[it.JobNo]
		}
		v.Combined = combined(v, it)
		views = append(views, v)
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].RequestNo != views[j].RequestNo {
			return views[i].RequestNo < views[j].RequestNo
		}
		return views[i].JobNo < views[j].JobNo
	})
	return views
}

func combined(v JobView, it model.PendingItem) string {
	if !it.Matched() {
		return JobUnmatched
	}
	switch it.Status {
	case model.ItemStatusWeighed, model.ItemStatusSubmitted:
		return JobCompleted
	}
	if v.WeightsKnown == 0 {
		return JobNeedsValues
	}
	return JobReady
}
