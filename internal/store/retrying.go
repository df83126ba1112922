package store

import (
	"context"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/resilience"
)

// retryingStore decorates a Store so every call retries transient failures
// with the configured backoff. Not-found and other permanent errors return
// immediately.
type retryingStore struct {
	inner Store
	cfg   resilience.RetryConfig
}

// WithRetry wraps inner with per-call retry. A zero-value cfg gets the
// package defaults (3 attempts, doubling backoff).
func WithRetry(inner Store, cfg resilience.RetryConfig) Store {
	return &retryingStore{inner: inner, cfg: cfg}
}

func (r *retryingStore) UpsertPendingItems(ctx context.Context, items []model.PendingItem) (int64, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (int64, error) {
		return r.inner.UpsertPendingItems(ctx, items)
	})
}

func (r *retryingStore) ListPendingItems(ctx context.Context, filter ItemFilter) ([]model.PendingItem, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) ([]model.PendingItem, error) {
		return r.inner.ListPendingItems(ctx, filter)
	})
}

func (r *retryingStore) PendingByRequest(ctx context.Context, firmID string) (map[string][]*model.PendingItem, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (map[string][]*model.PendingItem, error) {
		return r.inner.PendingByRequest(ctx, firmID)
	})
}

func (r *retryingStore) AssignJobNo(ctx context.Context, itemID int64, jobNo string) error {
	return resilience.Do(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.AssignJobNo(ctx, itemID, jobNo)
	})
}

func (r *retryingStore) UpdateItemStatus(ctx context.Context, itemID int64, status model.ItemStatus) error {
	return resilience.Do(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.UpdateItemStatus(ctx, itemID, status)
	})
}

func (r *retryingStore) SaveTags(ctx context.Context, tags []model.Tag) (int64, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (int64, error) {
		return r.inner.SaveTags(ctx, tags)
	})
}

func (r *retryingStore) WeightEntries(ctx context.Context, jobNos []string) (map[string]map[string]model.WeightEntry, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (map[string]map[string]model.WeightEntry, error) {
		return r.inner.WeightEntries(ctx, jobNos)
	})
}

func (r *retryingStore) UpdateHUIDCodes(ctx context.Context, jobNo string, codes map[string]string) (int, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (int, error) {
		return r.inner.UpdateHUIDCodes(ctx, jobNo, codes)
	})
}

func (r *retryingStore) CreateRun(ctx context.Context, kind model.RunKind, firmID string) (*model.BatchRun, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (*model.BatchRun, error) {
		return r.inner.CreateRun(ctx, kind, firmID)
	})
}

func (r *retryingStore) FinishRun(ctx context.Context, runID string, summary model.BatchSummary) error {
	return resilience.Do(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.FinishRun(ctx, runID, summary)
	})
}

func (r *retryingStore) GetRun(ctx context.Context, runID string) (*model.BatchRun, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) (*model.BatchRun, error) {
		return r.inner.GetRun(ctx, runID)
	})
}

func (r *retryingStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) ([]model.BatchRun, error) {
		return r.inner.ListRuns(ctx, filter)
	})
}

func (r *retryingStore) Migrate(ctx context.Context) error {
	return resilience.Do(ctx, r.cfg, func(ctx context.Context) error {
		return r.inner.Migrate(ctx)
	})
}

func (r *retryingStore) Close() error {
	return r.inner.Close()
}
