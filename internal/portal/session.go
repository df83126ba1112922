package portal

import (
	"context"
	"sync"
	"time"
)

// DefaultPageWait bounds waits for a page repaint after navigation within
// an already-loaded list, such as pager clicks.
const DefaultPageWait = 10 * time.Second

// Session serializes access to the one shared browser session. The page a
// driver currently shows is a single mutable resource with no internal
// locking, so at most one batch worker may drive it at a time. Session is
// the one serialization point; components receive the capability explicitly
// and never reach for a global.
type Session struct {
	mu sync.Mutex
	d  Driver
}

// NewSession wraps a driver for exclusive use.
func NewSession(d Driver) *Session {
	return &Session{d: d}
}

// Use runs fn with exclusive ownership of the driver. Calls block until the
// current owner releases the session.
func (s *Session) Use(fn func(d Driver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

// UseContext is Use with an upfront cancellation check, for workers that
// may have been cancelled while waiting on the lock.
func (s *Session) UseContext(ctx context.Context, fn func(d Driver) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.d)
}

// Settle sleeps for the configured delay, honoring cancellation. Used after
// a mutating save so the next observation happens-after the portal has
// refreshed.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
