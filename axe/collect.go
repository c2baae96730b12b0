package axe

import (
	"context"
	"encoding/json"
	"fmt"
)

// runPartialRecursive collects partial results for the current frame and,
// in pre-order, every child frame the engine still wants scanned. The
// returned sequence holds one entry per attempted frame: a frame that could
// not be reached or scanned contributes exactly one nil marker, a reachable
// frame contributes its own subtree's full sequence. A failure of the
// current frame's own partial run is not convertible to a marker here; it
// propagates and the caller decides (the parent loop turns it into the
// child's marker, the top-level Analyze aborts).
//
// The browsing context is back at this call's own frame on every return
// path; it is never left inside a descendant.
func (b *Builder) runPartialRecursive(ctx context.Context, sc *ScanContext, opts json.RawMessage) ([]PartialResult, error) {
	frames, err := b.frameContexts(ctx, sc)
	if err != nil {
		return nil, err
	}

	self, err := b.runPartial(ctx, sc, opts)
	if err != nil {
		return nil, err
	}
	partials := []PartialResult{self}

	for _, fc := range frames {
		sub, err := b.collectFrame(ctx, fc, opts)
		if err != nil {
			b.logger.Warn("axe: child frame scan failed",
				"selector", []string(fc.FrameSelector), "error", err)
			partials = append(partials, nil)
			continue
		}
		partials = append(partials, sub...)
	}
	return partials, nil
}

// collectFrame descends into one child frame, re-injects the engine there
// (the frame may never have seen it), and recurses with the child's own
// context. The browsing context is restored to the parent before returning,
// on the error paths too, so a failed subtree cannot corrupt the traversal
// of its siblings.
func (b *Builder) collectFrame(ctx context.Context, fc FrameContext, opts json.RawMessage) (_ []PartialResult, err error) {
	el, err := b.findFrame(ctx, fc.FrameSelector)
	if err != nil {
		return nil, err
	}

	if err := b.drv.SwitchToFrame(ctx, el); err != nil {
		return nil, fmt.Errorf("axe: switch to frame: %w", err)
	}
	defer func() {
		if perr := b.drv.SwitchToParentFrame(ctx); perr != nil && err == nil {
			err = fmt.Errorf("axe: switch to parent frame: %w", perr)
		}
	}()

	if _, err := b.drv.Execute(ctx, composedScript(b.source, b.legacy)); err != nil {
		return nil, fmt.Errorf("axe: inject engine in frame: %w", err)
	}

	child := fc.FrameContext
	return b.runPartialRecursive(ctx, &child, opts)
}

// frameContexts asks the in-page engine for the child frames still in scope.
func (b *Builder) frameContexts(ctx context.Context, sc *ScanContext) ([]FrameContext, error) {
	raw, err := b.drv.Execute(ctx, frameContextsScript, sc)
	if err != nil {
		return nil, fmt.Errorf("axe: get frame contexts: %w", err)
	}
	var frames []FrameContext
	if err := json.Unmarshal(raw, &frames); err != nil {
		return nil, fmt.Errorf("axe: decode frame contexts: %w", err)
	}
	return frames, nil
}

// runPartial runs the engine's partial analysis in the current frame.
func (b *Builder) runPartial(ctx context.Context, sc *ScanContext, opts json.RawMessage) (PartialResult, error) {
	raw, err := b.drv.Execute(ctx, runPartialScript, sc, opts)
	if err != nil {
		return nil, fmt.Errorf("axe: run partial: %w", err)
	}
	return PartialResult(raw), nil
}

// findFrame resolves a frame element from the selector the engine supplied.
// Single-entry selectors resolve in the current document; longer paths cross
// shadow roots and need driver support. Fails fast when the element is gone.
func (b *Builder) findFrame(ctx context.Context, sel Selector) (ElementRef, error) {
	switch {
	case len(sel) == 0:
		return nil, fmt.Errorf("axe: empty frame selector")
	case len(sel) == 1:
		return b.drv.Find(ctx, sel[0])
	default:
		sf, ok := b.drv.(ShadowFinder)
		if !ok {
			return nil, fmt.Errorf("axe: driver cannot resolve shadow DOM frame selector %v", []string(sel))
		}
		return sf.FindInShadow(ctx, sel)
	}
}
