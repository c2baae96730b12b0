package axe

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNoSuchElement is returned by Driver.Find when no element matches.
var ErrNoSuchElement = errors.New("axe: no such element")

// WindowID identifies a top-level browsing context (window or tab).
type WindowID string

// ElementRef is an opaque handle to a DOM element in the current browsing
// context. Its concrete type is owned by the Driver implementation.
type ElementRef any

// Driver is the remote-control capability set the orchestrator needs. All
// commands apply to the driver's current browsing context, which is global
// mutable state: SwitchToFrame and SwitchToWindow change it for every
// subsequent call, so callers must save and restore it around recursion.
//
// Execute runs a JavaScript function expression in the current frame. Each
// arg must be JSON-serializable and is passed as a function parameter. If
// the function returns a promise, its resolution is awaited.
type Driver interface {
	Execute(ctx context.Context, script string, args ...any) (json.RawMessage, error)
	Find(ctx context.Context, selector string) (ElementRef, error)
	FindAll(ctx context.Context, selector string) ([]ElementRef, error)
	ElementExists(ctx context.Context, ref ElementRef) (bool, error)

	SwitchToFrame(ctx context.Context, ref ElementRef) error
	SwitchToParentFrame(ctx context.Context) error

	CurrentWindow(ctx context.Context) (WindowID, error)
	// CreateWindow opens a new window or tab of the given kind ("tab" or
	// "window") without switching to it. An empty WindowID with a nil error
	// means the browser reported success but returned no handle; popup
	// blockers commonly cause this.
	CreateWindow(ctx context.Context, kind string) (WindowID, error)
	SwitchToWindow(ctx context.Context, id WindowID) error
	NavigateTo(ctx context.Context, url string) error
	CloseWindow(ctx context.Context) error
}

// ShadowFinder is implemented by drivers that can resolve a selector path
// crossing shadow DOM boundaries: each entry selects a host element, the
// next entry is matched inside that host's shadow root.
type ShadowFinder interface {
	FindInShadow(ctx context.Context, path []string) (ElementRef, error)
}
