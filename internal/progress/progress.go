// Package progress carries batch progress out of the engine without ever
// blocking it: sinks are fire-and-forget, and the engine keeps its own
// summary tally regardless of who is listening.
package progress

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/model"
)

// Sink receives progress and log events from a batch operation. Callers
// must not block; the engine never waits for acknowledgement.
type Sink interface {
	Progress(current, total int, message string)
	Log(message string)
}

// Logger is the default Sink, reporting through the global zap logger.
type Logger struct{}

func (Logger) Progress(current, total int, message string) {
	zap.L().Info(message,
		zap.Int("current", current),
		zap.Int("total", total),
	)
}

func (Logger) Log(message string) {
	zap.L().Info(message)
}

// Counter is a Sink that records event counts and the last progress seen.
// Intended for tests.
type Counter struct {
	mu          sync.Mutex
	Events      int
	LogLines    []string
	LastCurrent int
	LastTotal   int
}

func (c *Counter) Progress(current, total int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events++
	c.LastCurrent = current
	c.LastTotal = total
}

func (c *Counter) Log(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LogLines = append(c.LogLines, message)
}

// Tracker accumulates a batch summary alongside an optional delegate sink.
// Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	summary model.BatchSummary
	sink    Sink
}

// NewTracker wraps sink (Logger when nil) with summary bookkeeping.
func NewTracker(sink Sink) *Tracker {
	if sink == nil {
		sink = Logger{}
	}
	return &Tracker{sink: sink}
}

func (t *Tracker) Progress(current, total int, message string) {
	t.sink.Progress(current, total, message)
}

func (t *Tracker) Log(message string) {
	t.sink.Log(message)
}

func (t *Tracker) Logf(format string, args ...any) {
	t.sink.Log(fmt.Sprintf(format, args...))
}

func (t *Tracker) Succeeded() { t.add(func(s *model.BatchSummary) { s.Succeeded++ }) }
func (t *Tracker) Failed()    { t.add(func(s *model.BatchSummary) { s.Failed++ }) }
func (t *Tracker) Partial()   { t.add(func(s *model.BatchSummary) { s.Partial++ }) }
func (t *Tracker) Skipped()   { t.add(func(s *model.BatchSummary) { s.Skipped++ }) }

func (t *Tracker) add(fn func(*model.BatchSummary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.summary)
}

// Summary returns the tally so far.
func (t *Tracker) Summary() model.BatchSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}
