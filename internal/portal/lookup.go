package portal

import (
	"go.uber.org/zap"
)

// Strategy is one way of locating an element. A strategy that finds nothing
// returns (nil, nil); the chain moves on to the next one.
type Strategy struct {
	Name string
	Find func(d Driver) (Element, error)
}

// BySelector builds a strategy from a plain CSS selector.
func BySelector(selector string) Strategy {
	return Strategy{
		Name: selector,
		Find: func(d Driver) (Element, error) {
			return d.Find(selector)
		},
	}
}

// ByVisibleSelector is BySelector restricted to rendered elements; hidden
// matches are skipped so later strategies can try.
func ByVisibleSelector(selector string) Strategy {
	return Strategy{
		Name: selector + " (visible)",
		Find: func(d Driver) (Element, error) {
			els, err := d.FindAll(selector)
			if err != nil {
				return nil, err
			}
			for _, el := range els {
				visible, err := el.Visible()
				if err != nil {
					continue
				}
				if visible {
					return el, nil
				}
			}
			return nil, nil
		},
	}
}

// Lookup tries strategies in order and returns the first element found.
// Strategy errors are demoted to log lines; only full exhaustion is
// reported, as ErrElementNotFound. Callers that can proceed without the
// element log and skip rather than aborting the batch.
func Lookup(d Driver, what string, strategies ...Strategy) (Element, error) {
	for _, s := range strategies {
		el, err := s.Find(d)
		if err != nil {
			zap.L().Debug("portal: lookup strategy failed",
				zap.String("target", what),
				zap.String("strategy", s.Name),
				zap.Error(err),
			)
			continue
		}
		if el != nil {
			return el, nil
		}
	}
	zap.L().Debug("portal: all lookup strategies exhausted",
		zap.String("target", what),
		zap.Int("strategies", len(strategies)),
	)
	return nil, ErrElementNotFound
}

// LookupAll tries strategies in order and returns the first non-empty list.
func LookupAll(d Driver, what string, selectors ...string) ([]Element, error) {
	for _, sel := range selectors {
		els, err := d.FindAll(sel)
		if err != nil {
			zap.L().Debug("portal: list lookup failed",
				zap.String("target", what),
				zap.String("selector", sel),
				zap.Error(err),
			)
			continue
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, ErrElementNotFound
}
