package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/axedrive/axe"
)

// Driver implements the axe remote-control capability set on top of Rod.
//
// CDP has no stateful "current frame" the way WebDriver does; Rod exposes
// each frame as its own page handle instead. The driver recreates the
// browsing-context model with an explicit frame stack: SwitchToFrame pushes
// the frame's page, SwitchToParentFrame pops, and every command runs against
// the top of the stack. Window handles map to CDP target IDs.
//
// Not safe for concurrent use; the scan traversal is strictly sequential
// anyway.
type Driver struct {
	browser *rod.Browser
	page    *rod.Page   // active top-level page (window)
	frames  []*rod.Page // frame stack inside the active window
	windows map[axe.WindowID]*rod.Page
	logger  *slog.Logger
}

var (
	_ axe.Driver       = (*Driver)(nil)
	_ axe.ShadowFinder = (*Driver)(nil)
)

// NewDriver wraps an already-navigated page. The page becomes the driver's
// initial window.
func NewDriver(b *rod.Browser, page *rod.Page, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{
		browser: b,
		page:    page,
		windows: map[axe.WindowID]*rod.Page{},
		logger:  logger,
	}
	d.windows[axe.WindowID(page.TargetID)] = page
	return d
}

// Page returns the driver's active top-level page.
func (d *Driver) Page() *rod.Page { return d.page }

// current is the page handle for the current browsing context: the deepest
// entered frame, or the window itself.
func (d *Driver) current() *rod.Page {
	if n := len(d.frames); n > 0 {
		return d.frames[n-1]
	}
	return d.page
}

func (d *Driver) Execute(ctx context.Context, script string, args ...any) (json.RawMessage, error) {
	res, err := d.current().Context(ctx).Eval(script, args...)
	if err != nil {
		return nil, fmt.Errorf("browser: eval: %w", err)
	}
	data, err := json.Marshal(res.Value.Val())
	if err != nil {
		return nil, fmt.Errorf("browser: eval result: %w", err)
	}
	return data, nil
}

func (d *Driver) Find(ctx context.Context, selector string) (axe.ElementRef, error) {
	has, el, err := d.current().Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: find %q: %w", selector, err)
	}
	if !has {
		return nil, axe.ErrNoSuchElement
	}
	return el, nil
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]axe.ElementRef, error) {
	els, err := d.current().Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: find all %q: %w", selector, err)
	}
	refs := make([]axe.ElementRef, 0, len(els))
	for _, el := range els {
		refs = append(refs, el)
	}
	return refs, nil
}

func (d *Driver) ElementExists(ctx context.Context, ref axe.ElementRef) (bool, error) {
	el, err := asElement(ref)
	if err != nil {
		return false, err
	}
	res, err := el.Context(ctx).Eval(`() => document.contains(this)`)
	if err != nil {
		// Evaluation against a detached node or destroyed context fails;
		// that is exactly "the element no longer exists".
		return false, nil
	}
	return res.Value.Bool(), nil
}

func (d *Driver) SwitchToFrame(ctx context.Context, ref axe.ElementRef) error {
	el, err := asElement(ref)
	if err != nil {
		return err
	}
	fp, err := el.Context(ctx).Frame()
	if err != nil {
		return fmt.Errorf("browser: enter frame: %w", err)
	}
	d.frames = append(d.frames, fp)
	return nil
}

func (d *Driver) SwitchToParentFrame(context.Context) error {
	// At the top level this is a no-op, matching remote-protocol behavior.
	if n := len(d.frames); n > 0 {
		d.frames = d.frames[:n-1]
	}
	return nil
}

func (d *Driver) CurrentWindow(context.Context) (axe.WindowID, error) {
	if d.page == nil {
		return "", fmt.Errorf("browser: no active window")
	}
	return axe.WindowID(d.page.TargetID), nil
}

func (d *Driver) CreateWindow(ctx context.Context, kind string) (axe.WindowID, error) {
	p, err := d.browser.Context(ctx).Page(proto.TargetCreateTarget{
		URL:       "about:blank",
		NewWindow: kind == "window",
	})
	if err != nil {
		return "", fmt.Errorf("browser: create window: %w", err)
	}
	id := axe.WindowID(p.TargetID)
	d.windows[id] = p
	return id, nil
}

func (d *Driver) SwitchToWindow(ctx context.Context, id axe.WindowID) error {
	p, ok := d.windows[id]
	if !ok {
		pages, err := d.browser.Context(ctx).Pages()
		if err != nil {
			return fmt.Errorf("browser: list windows: %w", err)
		}
		for _, cand := range pages {
			if axe.WindowID(cand.TargetID) == id {
				p = cand
				break
			}
		}
		if p == nil {
			return fmt.Errorf("browser: no window with handle %s", id)
		}
		d.windows[id] = p
	}
	d.page = p
	d.frames = nil
	return nil
}

func (d *Driver) NavigateTo(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := d.page.Context(ctx).WaitLoad(); err != nil {
		d.logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

func (d *Driver) CloseWindow(context.Context) error {
	if d.page == nil {
		return fmt.Errorf("browser: no active window")
	}
	id := axe.WindowID(d.page.TargetID)
	err := d.page.Close()
	delete(d.windows, id)
	d.page = nil
	d.frames = nil
	if err != nil {
		return fmt.Errorf("browser: close window: %w", err)
	}
	return nil
}

// FindInShadow resolves a selector path crossing shadow DOM boundaries:
// each entry selects a host element, the next entry matches inside that
// host's shadow root.
func (d *Driver) FindInShadow(ctx context.Context, path []string) (axe.ElementRef, error) {
	if len(path) == 0 {
		return nil, axe.ErrNoSuchElement
	}
	ref, err := d.Find(ctx, path[0])
	if err != nil {
		return nil, err
	}
	el := ref.(*rod.Element)
	for _, sel := range path[1:] {
		root, err := el.Context(ctx).ShadowRoot()
		if err != nil {
			return nil, fmt.Errorf("browser: shadow root: %w", err)
		}
		has, next, err := root.Context(ctx).Has(sel)
		if err != nil {
			return nil, fmt.Errorf("browser: find %q in shadow root: %w", sel, err)
		}
		if !has {
			return nil, axe.ErrNoSuchElement
		}
		el = next
	}
	return el, nil
}

func asElement(ref axe.ElementRef) (*rod.Element, error) {
	el, ok := ref.(*rod.Element)
	if !ok {
		return nil, fmt.Errorf("browser: element ref is %T, not a rod element", ref)
	}
	return el, nil
}
