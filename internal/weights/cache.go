// Package weights captures per-tag weights on the portal's weighing form:
// a read-only cache preloaded from the store, and a convergence loop that
// fills the form until every known weight is applied or a safety bound hits.
package weights

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/assayworks/hallmark-cli/internal/model"
)

// Cache maps job number to tag number to the cached weight entry for one
// batch run. It is loaded once, read-only afterwards, and never written
// back; the store stays the source of truth.
type Cache map[string]map[string]model.WeightEntry

// Job returns the entries for one job; nil when the job has none.
func (c Cache) Job(jobNo string) map[string]model.WeightEntry {
	return c[jobNo]
}

// Known returns the total number of cached weights.
func (c Cache) Known() int {
	n := 0
	for _, tags := range c {
		n += len(tags)
	}
	return n
}

// Loader is the store capability backing Preload. Implementations exclude
// zero and negative weights, which mean "not yet known".
type Loader interface {
	WeightEntries(ctx context.Context, jobNos []string) (map[string]map[string]model.WeightEntry, error)
}

// Preload performs the single batched read for a run's job numbers.
func Preload(ctx context.Context, loader Loader, jobNos []string) (Cache, error) {
	if len(jobNos) == 0 {
		return Cache{}, nil
	}
	entries, err := loader.WeightEntries(ctx, jobNos)
	if err != nil {
		return nil, eris.Wrap(err, "weights: preload cache")
	}
	return Cache(entries), nil
}
