// Package store persists pending work items, tag weights, and batch-run
// bookkeeping behind a dual-driver (SQLite / Postgres) interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/assayworks/hallmark-cli/internal/model"
)

// ErrNotFound is returned when an update or lookup targets a row that does
// not exist. Both drivers wrap it, so callers test with eris.Is.
var ErrNotFound = eris.New("store: not found")

// ItemFilter specifies criteria for listing pending items.
type ItemFilter struct {
	RequestNo string           `json:"request_no,omitempty"`
	FirmID    string           `json:"firm_id,omitempty"`
	Status    model.ItemStatus `json:"status,omitempty"`
	Unmatched bool             `json:"unmatched,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	Offset    int              `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing batch runs.
type RunFilter struct {
	Kind   model.RunKind   `json:"kind,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the reconciliation engine.
type Store interface {
	// Pending items
	UpsertPendingItems(ctx context.Context, items []model.PendingItem) (int64, error)
	ListPendingItems(ctx context.Context, filter ItemFilter) ([]model.PendingItem, error)
	PendingByRequest(ctx context.Context, firmID string) (map[string][]*model.PendingItem, error)
	AssignJobNo(ctx context.Context, itemID int64, jobNo string) error
	UpdateItemStatus(ctx context.Context, itemID int64, status model.ItemStatus) error

	// Tags and weights
	SaveTags(ctx context.Context, tags []model.Tag) (int64, error)
	WeightEntries(ctx context.Context, jobNos []string) (map[string]map[string]model.WeightEntry, error)
	UpdateHUIDCodes(ctx context.Context, jobNo string, codes map[string]string) (int, error)

	// Batch runs
	CreateRun(ctx context.Context, kind model.RunKind, firmID string) (*model.BatchRun, error)
	FinishRun(ctx context.Context, runID string, summary model.BatchSummary) error
	GetRun(ctx context.Context, runID string) (*model.BatchRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.BatchRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
