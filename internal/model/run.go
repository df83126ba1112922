package model

import "time"

// RunKind names a batch operation recorded in the store.
type RunKind string

const (
	RunKindScan      RunKind = "scan"
	RunKindReconcile RunKind = "reconcile"
	RunKindFill      RunKind = "fill"
	RunKindReport    RunKind = "report"
)

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// BatchRun is the bookkeeping record for one scan/reconcile/fill pass.
type BatchRun struct {
	ID         string       `json:"id"`
	Kind       RunKind      `json:"kind"`
	FirmID     string       `json:"firm_id"`
	Status     RunStatus    `json:"status"`
	Summary    BatchSummary `json:"summary"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// BatchSummary is the per-run outcome tally every batch operation ends with.
type BatchSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Partial   int `json:"partial"`
	Skipped   int `json:"skipped"`
}

// Total returns the number of items the batch touched.
func (s BatchSummary) Total() int {
	return s.Succeeded + s.Failed + s.Partial + s.Skipped
}

// Status derives the run status from the tally: any failure with no success
// is failed, any partial or mixed outcome is partial, otherwise complete.
func (s BatchSummary) Status() RunStatus {
	switch {
	case s.Failed > 0 && s.Succeeded == 0 && s.Partial == 0:
		return RunStatusFailed
	case s.Partial > 0 || s.Failed > 0:
		return RunStatusPartial
	default:
		return RunStatusComplete
	}
}
