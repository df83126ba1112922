// Package rodriver implements portal.Driver on go-rod, driving a real
// Chromium instance over the DevTools protocol.
package rodriver

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/assayworks/hallmark-cli/internal/portal"
)

// Options configures the launched browser.
type Options struct {
	Headless          bool
	ControlURL        string // attach to an existing browser instead of launching
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

// DefaultOptions returns the settings used by the batch commands.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		NavigationTimeout: 30 * time.Second,
		ViewportWidth:     1280,
		ViewportHeight:    720,
	}
}

// Driver drives one page of one browser. Confirmation dialogs are accepted
// as they appear; their text is buffered for AcceptPrompt.
type Driver struct {
	browser    *rod.Browser
	page       *rod.Page
	navTimeout time.Duration

	dialogs chan string
	stop    func()
}

// New launches (or attaches to) a browser and opens a blank page.
func New(opts Options) (*Driver, error) {
	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, eris.Wrap(err, "rodriver: launch browser")
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, eris.Wrap(err, "rodriver: connect browser")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, eris.Wrap(err, "rodriver: open page")
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		}); err != nil {
			return nil, eris.Wrap(err, "rodriver: set viewport")
		}
	}

	navTimeout := opts.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = DefaultOptions().NavigationTimeout
	}

	d := &Driver{
		browser:    browser,
		page:       page,
		navTimeout: navTimeout,
		dialogs:    make(chan string, 8),
	}
	dialogCtx, cancel := context.WithCancel(context.Background())
	d.stop = cancel
	go d.page.Context(dialogCtx).EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		zap.L().Debug("rodriver: dialog opened", zap.String("text", e.Message))
		select {
		case d.dialogs <- e.Message:
		default:
		}
		// The prompt is advisory, never a veto.
		_ = proto.PageHandleJavaScriptDialog{Accept: true}.Call(d.page)
	})()
	return d, nil
}

// Close shuts the page and, when we launched it, the browser.
func (d *Driver) Close() error {
	if d.stop != nil {
		d.stop()
	}
	if err := d.page.Close(); err != nil {
		return eris.Wrap(err, "rodriver: close page")
	}
	return eris.Wrap(d.browser.Close(), "rodriver: close browser")
}

// Navigate loads url and waits for the load event, bounded by the
// configured navigation timeout.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.navTimeout)
	if err := page.Navigate(url); err != nil {
		return eris.Wrapf(portal.ErrNavigationTimeout, "rodriver: navigate %s: %v", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return eris.Wrapf(portal.ErrNavigationTimeout, "rodriver: wait load %s: %v", url, err)
	}
	return nil
}

func (d *Driver) CurrentURL() (string, error) {
	info, err := d.page.Info()
	if err != nil {
		return "", eris.Wrap(err, "rodriver: page info")
	}
	return info.URL, nil
}

// Find queries without waiting; absence is (nil, nil), never an error.
func (d *Driver) Find(selector string) (portal.Element, error) {
	has, el, err := d.page.Has(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodriver: query %s", selector)
	}
	if !has {
		return nil, nil
	}
	return &element{el: el}, nil
}

func (d *Driver) FindAll(selector string) ([]portal.Element, error) {
	els, err := d.page.Elements(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodriver: query all %s", selector)
	}
	out := make([]portal.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out, nil
}

// WaitUntil polls pred every 100ms until it reports true or timeout passes.
func (d *Driver) WaitUntil(ctx context.Context, timeout time.Duration, pred func() (bool, error)) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
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
		case <-ticker.C:
		}
	}
}

// AcceptPrompt waits briefly for a dialog. Dialogs are accepted by the
// event handler the moment they open; this call just surfaces the text.
func (d *Driver) AcceptPrompt(ctx context.Context) (string, error) {
	select {
	case text := <-d.dialogs:
		return text, nil
	case <-time.After(3 * time.Second):
		return "", portal.ErrNoPrompt
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RunScript evaluates a JavaScript function expression on the page.
func (d *Driver) RunScript(ctx context.Context, js string) (string, error) {
	res, err := d.page.Context(ctx).Eval(js)
	if err != nil {
		return "", eris.Wrap(err, "rodriver: eval")
	}
	return res.Value.String(), nil
}

type element struct {
	el *rod.Element
}

func (e *element) Text() (string, error) {
	text, err := e.el.Text()
	if err != nil {
		return "", eris.Wrap(err, "rodriver: element text")
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Attr(name string) (string, error) {
	val, err := e.el.Attribute(name)
	if err != nil {
		return "", eris.Wrapf(err, "rodriver: attribute %s", name)
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

func (e *element) Click() error {
	return eris.Wrap(e.el.Click(proto.InputMouseButtonLeft, 1), "rodriver: click")
}

func (e *element) Clear() error {
	if err := e.el.SelectAllText(); err != nil {
		return eris.Wrap(err, "rodriver: select text")
	}
	return eris.Wrap(e.el.Input(""), "rodriver: clear")
}

func (e *element) Type(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return eris.Wrap(err, "rodriver: select text")
	}
	return eris.Wrap(e.el.Input(text), "rodriver: input")
}

func (e *element) Visible() (bool, error) {
	visible, err := e.el.Visible()
	if err != nil {
		return false, eris.Wrap(err, "rodriver: visible")
	}
	return visible, nil
}

// Enabled reports interactability: no disabled attribute and no
// "disabled" marker class, matching how the portal greys out controls.
func (e *element) Enabled() (bool, error) {
	if attr, err := e.el.Attribute("disabled"); err == nil && attr != nil {
		return false, nil
	}
	if class, err := e.el.Attribute("class"); err == nil && class != nil {
		if strings.Contains(strings.ToLower(*class), "disabled") {
			return false, nil
		}
	}
	return true, nil
}

func (e *element) Find(selector string) (portal.Element, error) {
	has, el, err := e.el.Has(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodriver: query %s", selector)
	}
	if !has {
		return nil, nil
	}
	return &element{el: el}, nil
}

func (e *element) FindAll(selector string) ([]portal.Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, eris.Wrapf(err, "rodriver: query all %s", selector)
	}
	out := make([]portal.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out, nil
}
