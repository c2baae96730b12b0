package axe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// fakeFrame is one node of a simulated frame tree. The zero value is a
// healthy frame with no children and an empty partial result.
type fakeFrame struct {
	selector string // selector relative to the parent frame
	children []*fakeFrame

	partial    string // JSON returned by the partial run ("" means {})
	partialErr error
	detached   bool  // element cannot be found anymore
	switchErr  error // entering the frame fails (e.g. cross-origin)
	injectErr  error

	injections  int
	lastContext string // JSON of the context the partial run received
}

// fakeDriver implements Driver against an in-memory frame tree. Execute
// dispatches on the exact script constants the orchestrator uses.
type fakeDriver struct {
	root  *fakeFrame
	stack []*fakeFrame

	partialSupported bool

	currentWin      WindowID
	newWindowHandle WindowID
	createErr       error
	switchWinErr    map[WindowID]error
	closedWindows   []WindowID
	navigated       []string

	mergeResult    string
	mergeErr       error
	mergedOptions  string
	mergedPartials string

	legacyResult  string
	legacyContext string
	legacyOptions string

	events []string
}

func newFakeDriver(root *fakeFrame) *fakeDriver {
	return &fakeDriver{
		root:             root,
		partialSupported: true,
		currentWin:       "w-main",
		newWindowHandle:  "w-blank",
		mergeResult:      `{"violations":[],"passes":[],"incomplete":[],"inapplicable":[]}`,
		legacyResult:     `{"violations":[],"passes":[],"incomplete":[],"inapplicable":[]}`,
	}
}

func (d *fakeDriver) frame() *fakeFrame {
	if len(d.stack) == 0 {
		return d.root
	}
	return d.stack[len(d.stack)-1]
}

func (d *fakeDriver) log(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

func marshalArg(a any) string {
	data, _ := json.Marshal(a)
	return string(data)
}

func (d *fakeDriver) Execute(_ context.Context, script string, args ...any) (json.RawMessage, error) {
	switch script {
	case probeScript:
		d.log("probe")
		return json.RawMessage(fmt.Sprintf("%t", d.partialSupported)), nil

	case frameContextsScript:
		d.log("frameContexts %s", d.frame().selector)
		frames := []FrameContext{}
		for _, c := range d.frame().children {
			frames = append(frames, FrameContext{
				FrameSelector: Selector{c.selector},
				FrameContext:  ScanContext{Include: []Selector{{"#inside-" + strings.TrimPrefix(c.selector, "#")}}},
			})
		}
		return json.Marshal(frames)

	case runPartialScript:
		f := d.frame()
		d.log("runPartial %s", f.selector)
		if f.partialErr != nil {
			return nil, f.partialErr
		}
		if len(args) > 0 {
			f.lastContext = marshalArg(args[0])
		}
		if f.partial == "" {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(f.partial), nil

	case finishRunScript:
		d.log("finishRun in %s", d.currentWin)
		if len(args) == 2 {
			d.mergedOptions = marshalArg(args[0])
			d.mergedPartials = marshalArg(args[1])
		}
		if d.mergeErr != nil {
			return nil, d.mergeErr
		}
		return json.RawMessage(d.mergeResult), nil

	case legacyRunScript:
		d.log("legacyRun")
		if len(args) == 2 {
			d.legacyContext = marshalArg(args[0])
			d.legacyOptions = marshalArg(args[1])
		}
		return json.RawMessage(d.legacyResult), nil

	default:
		// Anything else is an injection of the composed engine script.
		f := d.frame()
		d.log("inject %s", f.selector)
		if f.injectErr != nil {
			return nil, f.injectErr
		}
		f.injections++
		return json.RawMessage("null"), nil
	}
}

func (d *fakeDriver) Find(_ context.Context, selector string) (ElementRef, error) {
	for _, c := range d.frame().children {
		if c.selector == selector && !c.detached {
			return c, nil
		}
	}
	return nil, ErrNoSuchElement
}

func (d *fakeDriver) FindAll(_ context.Context, selector string) ([]ElementRef, error) {
	// The injector enumerates "frame..." and "iframe..." separately; the
	// fake keeps all children under "iframe" and applies :not() exclusions.
	if strings.HasPrefix(selector, "frame") {
		return nil, nil
	}
	var refs []ElementRef
	for _, c := range d.frame().children {
		if excludedBySelector(selector, c.selector) {
			continue
		}
		refs = append(refs, c)
	}
	return refs, nil
}

// excludedBySelector emulates ":not(sel)" clauses against a child selector.
func excludedBySelector(query, childSel string) bool {
	return strings.Contains(query, ":not("+childSel+")")
}

func (d *fakeDriver) ElementExists(_ context.Context, ref ElementRef) (bool, error) {
	f, ok := ref.(*fakeFrame)
	if !ok {
		return false, errors.New("fake: bad element ref")
	}
	return !f.detached, nil
}

func (d *fakeDriver) SwitchToFrame(_ context.Context, ref ElementRef) error {
	f, ok := ref.(*fakeFrame)
	if !ok {
		return errors.New("fake: bad element ref")
	}
	if f.switchErr != nil {
		return f.switchErr
	}
	d.stack = append(d.stack, f)
	d.log("enter %s", f.selector)
	return nil
}

func (d *fakeDriver) SwitchToParentFrame(_ context.Context) error {
	if len(d.stack) == 0 {
		return nil
	}
	d.log("leave %s", d.frame().selector)
	d.stack = d.stack[:len(d.stack)-1]
	return nil
}

func (d *fakeDriver) CurrentWindow(_ context.Context) (WindowID, error) {
	return d.currentWin, nil
}

func (d *fakeDriver) CreateWindow(_ context.Context, kind string) (WindowID, error) {
	d.log("createWindow %s", kind)
	if d.createErr != nil {
		return "", d.createErr
	}
	return d.newWindowHandle, nil
}

func (d *fakeDriver) SwitchToWindow(_ context.Context, id WindowID) error {
	if err := d.switchWinErr[id]; err != nil {
		return err
	}
	d.currentWin = id
	d.log("switchWindow %s", id)
	return nil
}

func (d *fakeDriver) NavigateTo(_ context.Context, url string) error {
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *fakeDriver) CloseWindow(_ context.Context) error {
	d.closedWindows = append(d.closedWindows, d.currentWin)
	d.log("closeWindow %s", d.currentWin)
	return nil
}
