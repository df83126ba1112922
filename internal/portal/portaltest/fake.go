// Package portaltest provides an in-memory scriptable Driver for tests.
// Pages are flat maps of selector to elements; navigation swaps pages.
package portaltest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/assayworks/hallmark-cli/internal/portal"
)

// FakeElement is a scriptable portal.Element.
type FakeElement struct {
	TextValue    string
	Attrs        map[string]string
	VisibleValue bool
	EnabledValue bool
	Children     map[string][]*FakeElement

	InputValue string
	Clicks     int
	OnClick    func() error
}

// NewElement returns a visible, enabled element with the given text.
func NewElement(text string) *FakeElement {
	return &FakeElement{TextValue: text, VisibleValue: true, EnabledValue: true}
}

func (e *FakeElement) Text() (string, error) { return strings.TrimSpace(e.TextValue), nil }

func (e *FakeElement) Attr(name string) (string, error) {
	if e.Attrs == nil {
		return "", nil
	}
	return e.Attrs[name], nil
}

func (e *FakeElement) Click() error {
	e.Clicks++
	if e.OnClick != nil {
		return e.OnClick()
	}
	return nil
}

func (e *FakeElement) Clear() error {
	e.InputValue = ""
	return nil
}

func (e *FakeElement) Type(text string) error {
	e.InputValue = text
	return nil
}

func (e *FakeElement) Visible() (bool, error) { return e.VisibleValue, nil }
func (e *FakeElement) Enabled() (bool, error) { return e.EnabledValue, nil }

func (e *FakeElement) Find(selector string) (portal.Element, error) {
	els := e.Children[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (e *FakeElement) FindAll(selector string) ([]portal.Element, error) {
	var out []portal.Element
	for _, el := range e.Children[selector] {
		out = append(out, el)
	}
	return out, nil
}

// Page is one renderable page state: selector -> matching elements.
type Page map[string][]*FakeElement

// FakeDriver serves scripted pages. Navigate selects the page registered
// for the URL; OnNavigate, when set, can mutate state per navigation.
type FakeDriver struct {
	mu sync.Mutex

	Pages      map[string]Page
	Current    Page
	URL        string
	PromptText string

	Navigations     []string
	PromptsAccepted int
	OnNavigate      func(url string)
}

// NewDriver returns an empty driver; register pages before use.
func NewDriver() *FakeDriver {
	return &FakeDriver{Pages: map[string]Page{}}
}

// SetPage replaces the current page state in place, simulating a remote
// mutation after a save.
func (d *FakeDriver) SetPage(p Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Current = p
}

func (d *FakeDriver) Navigate(_ context.Context, url string) error {
	d.mu.Lock()
	d.URL = url
	d.Navigations = append(d.Navigations, url)
	if p, ok := d.Pages[url]; ok {
		d.Current = p
	}
	cb := d.OnNavigate
	d.mu.Unlock()
	if cb != nil {
		cb(url)
	}
	return nil
}

func (d *FakeDriver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.URL, nil
}

func (d *FakeDriver) Find(selector string) (portal.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	els := d.Current[selector]
	if len(els) == 0 {
		return nil, nil
	}
	return els[0], nil
}

func (d *FakeDriver) FindAll(selector string) ([]portal.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []portal.Element
	for _, el := range d.Current[selector] {
		out = append(out, el)
	}
	return out, nil
}

func (d *FakeDriver) WaitUntil(ctx context.Context, timeout time.Duration, pred func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := pred()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (d *FakeDriver) AcceptPrompt(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PromptText == "" {
		return "", portal.ErrNoPrompt
	}
	d.PromptsAccepted++
	text := d.PromptText
	d.PromptText = ""
	return text, nil
}

func (d *FakeDriver) RunScript(context.Context, string) (string, error) {
	return "", nil
}
