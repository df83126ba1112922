// Package portal defines the narrow web-automation capability the engine
// consumes, plus the element-lookup fallback chain and the serialization
// wrapper for the single shared browser session. Concrete drivers live in
// subpackages; nothing here assumes a specific rendering technology.
package portal

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// Taxonomy errors. ErrElementNotFound means a lookup's full fallback chain
// was exhausted; ErrNavigationTimeout means a page failed to reach its
// expected state within the wait.
var (
	ErrElementNotFound   = eris.New("portal: element not found")
	ErrNavigationTimeout = eris.New("portal: navigation timeout")
	ErrNoPrompt          = eris.New("portal: no prompt present")
)

// Element is one located node on the current page.
type Element interface {
	// Text returns the rendered text content, trimmed.
	Text() (string, error)
	// Attr returns the named attribute, or "" when absent.
	Attr(name string) (string, error)
	// Click activates the element.
	Click() error
	// Clear empties an input.
	Clear() error
	// Type replaces the element's input value with text.
	Type(text string) error
	// Visible reports whether the element is rendered and displayed.
	Visible() (bool, error)
	// Enabled reports whether the element accepts interaction.
	Enabled() (bool, error)
	// Find locates a descendant by CSS selector; (nil, nil) when absent.
	Find(selector string) (Element, error)
	// FindAll locates all descendants matching a CSS selector.
	FindAll(selector string) ([]Element, error)
}

// Driver is the opaque browser capability. Find never fails on absence: a
// missing element is (nil, nil), so every call site decides its own
// fallback. Mutating calls touch the one shared page and must be serialized
// by the caller (see Session).
type Driver interface {
	// Navigate loads a URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the address of the page being shown.
	CurrentURL() (string, error)
	// Find locates the first match for a CSS selector; (nil, nil) on absence.
	Find(selector string) (Element, error)
	// FindAll locates every match for a CSS selector.
	FindAll(selector string) ([]Element, error)
	// WaitUntil polls pred until it returns true or the timeout elapses.
	WaitUntil(ctx context.Context, timeout time.Duration, pred func() (bool, error)) (bool, error)
	// AcceptPrompt accepts a pending confirmation dialog, returning its
	// text. ErrNoPrompt when none is showing.
	AcceptPrompt(ctx context.Context) (string, error)
	// RunScript evaluates JavaScript on the page and returns its result
	// rendered as a string.
	RunScript(ctx context.Context, js string) (string, error)
}
