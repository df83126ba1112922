// Package scan iterates the portal's paginated completed-jobs list,
// producing a finite stream of scraped job records. The list is rendered by
// the remote site and repaginated by clicking, so every page pass re-reads
// whatever rows are currently shown and advancement is verified before the
// next pass starts.
package scan

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/assayworks/hallmark-cli/internal/model"
	"github.com/assayworks/hallmark-cli/internal/portal"
)

// DefaultPageCap bounds a scan defensively. Pagination normally terminates
// by itself when the next control stops advancing; the cap only guards
// against a portal that renders an endless pager.
const DefaultPageCap = 100

// Config controls one scan pass. Selector lists are fallback chains tried
// in order; the defaults match the portal's DataTables markup.
type Config struct {
	StartURL            string
	PageCap             int
	RowSelectors        []string
	NextSelectors       []string
	ActivePageSelectors []string
	SkipCompleted       bool
	AdvanceWait         time.Duration
	Limiter             *rate.Limiter
}

// DefaultConfig returns the selector chains the portal list pages use.
func DefaultConfig(startURL string) Config {
	return Config{
		StartURL: startURL,
		PageCap:  DefaultPageCap,
		RowSelectors: []string{
			"table.dataTable tbody tr",
			"table tbody tr",
			"table tr",
		},
		NextSelectors: []string{
			"a.paginate_button.next",
			".dataTables_paginate a.next",
			".pagination li.next a",
			"a[rel=next]",
		},
		ActivePageSelectors: []string{
			"li.paginate_button.active a",
			"li.active a",
			".pagination li.active a",
			".dataTables_paginate .active a",
			"a.active",
		},
		SkipCompleted: true,
		AdvanceWait:   portal.DefaultPageWait,
		Limiter:       rate.NewLimiter(rate.Limit(0.5), 1),
	}
}

// Scanner drives one scan pass over the shared session.
type Scanner struct {
	session *portal.Session
	cfg     Config
}

// NewScanner creates a Scanner. Scans over the same session must never run
// concurrently; the session serializes access but a scan also mutates which
// page the session shows.
func NewScanner(session *portal.Session, cfg Config) *Scanner {
	if cfg.PageCap <= 0 {
		cfg.PageCap = DefaultPageCap
	}
	if cfg.AdvanceWait <= 0 {
		cfg.AdvanceWait = portal.DefaultPageWait
	}
	return &Scanner{session: session, cfg: cfg}
}

// Scan navigates to the start URL and walks every page, calling emit for
// each well-formed record. Malformed rows are skipped, never fatal. The
// walk ends when the next control is absent, hidden, disabled, or clicks
// without the active-page indicator advancing, or when the page cap is hit.
func (s *Scanner) Scan(ctx context.Context, emit func(model.RemoteJobRecord) error) error {
	return s.session.UseContext(ctx, func(d portal.Driver) error {
		if err := d.Navigate(ctx, s.cfg.StartURL); err != nil {
			return eris.Wrap(err, "scan: open list")
		}

		for page := 1; ; page++ {
			if page > s.cfg.PageCap {
				zap.L().Warn("scan: page cap reached", zap.Int("cap", s.cfg.PageCap))
				return nil
			}

			records := s.readPage(d)
			zap.L().Debug("scan: page pass",
				zap.Int("page", page),
				zap.Int("records", len(records)),
			)
			for _, rec := range records {
				if err := emit(rec); err != nil {
					return err
				}
			}

			advanced, err := s.advance(ctx, d)
			if err != nil {
				return err
			}
			if !advanced {
				return nil
			}
		}
	})
}

// Collect runs Scan and gathers every record.
func (s *Scanner) Collect(ctx context.Context) ([]model.RemoteJobRecord, error) {
	var out []model.RemoteJobRecord
	err := s.Scan(ctx, func(rec model.RemoteJobRecord) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// readPage parses every well-formed row currently rendered.
func (s *Scanner) readPage(d portal.Driver) []model.RemoteJobRecord {
	rows, err := portal.LookupAll(d, "job rows", s.cfg.RowSelectors...)
	if err != nil {
		zap.L().Warn("scan: no rows on page", zap.Error(err))
		return nil
	}

	var out []model.RemoteJobRecord
	for _, row := range rows {
		rec, ok := parseRow(row)
		if !ok {
			continue
		}
		if s.cfg.SkipCompleted && strings.Contains(rec.PortalStatus, "Completed") {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// advance clicks the next control and verifies the active-page indicator
// moved. A control that clicks but leaves the indicator unchanged is a
// silent no-op pager on its last page; treating it as advancement would
// loop forever.
func (s *Scanner) advance(ctx context.Context, d portal.Driver) (bool, error) {
	next := s.findNextControl(d)
	if next == nil {
		return false, nil
	}

	before, hasBefore := s.activePage(d)
	if !hasBefore {
		zap.L().Debug("scan: no active-page indicator, stopping")
		return false, nil
	}

	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return false, err
		}
	}
	if err := next.Click(); err != nil {
		zap.L().Warn("scan: next control click failed", zap.Error(err))
		return false, nil
	}

	// Wait for the pager to repaint before re-reading the indicator.
	moved, err := d.WaitUntil(ctx, s.cfg.AdvanceWait, func() (bool, error) {
		after, ok := s.activePage(d)
		return ok && after != before, nil
	})
	if err != nil {
		return false, eris.Wrap(err, "scan: wait for page change")
	}
	if !moved {
		zap.L().Debug("scan: indicator did not advance, last page",
			zap.Int("page", before),
		)
		return false, nil
	}
	return true, nil
}

// findNextControl returns a usable next-page control or nil. The control
// must be present, visible, enabled, and not carry a disabled marker.
func (s *Scanner) findNextControl(d portal.Driver) portal.Element {
	strategies := make([]portal.Strategy, 0, len(s.cfg.NextSelectors)+1)
	for _, sel := range s.cfg.NextSelectors {
		strategies = append(strategies, portal.ByVisibleSelector(sel))
	}
	strategies = append(strategies, portal.Strategy{
		Name: "anchor text",
		Find: findNextByText,
	})

	el, err := portal.Lookup(d, "next control", strategies...)
	if err != nil {
		return nil
	}

	if enabled, err := el.Enabled(); err != nil || !enabled {
		return nil
	}
	if class, err := el.Attr("class"); err == nil &&
		strings.Contains(strings.ToLower(class), "disabled") {
		return nil
	}
	return el
}

// findNextByText falls back to scanning pager anchors for a next-like label.
func findNextByText(d portal.Driver) (portal.Element, error) {
	anchors, err := d.FindAll(".pagination a, .dataTables_paginate a")
	if err != nil || len(anchors) == 0 {
		anchors, err = d.FindAll("a")
		if err != nil {
			return nil, err
		}
	}
	for _, a := range anchors {
		text, err := a.Text()
		if err != nil {
			continue
		}
		switch strings.TrimSpace(text) {
		case "Next", "next", "›", "»":
			if visible, err := a.Visible(); err == nil && visible {
				return a, nil
			}
		}
	}
	return nil, nil
}

// activePage reads the numeric active-page indicator through its fallback
// chain, trying the URL's page parameter last.
func (s *Scanner) activePage(d portal.Driver) (int, bool) {
	for _, sel := range s.cfg.ActivePageSelectors {
		els, err := d.FindAll(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		text, err := els[0].Text()
		if err != nil {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
			return n, true
		}
	}

	if url, err := d.CurrentURL(); err == nil {
		if idx := strings.Index(url, "page="); idx >= 0 {
			rest := url[idx+len("page="):]
			if amp := strings.IndexByte(rest, '&'); amp >= 0 {
				rest = rest[:amp]
			}
			if n, err := strconv.Atoi(rest); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
