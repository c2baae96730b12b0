package axe

import (
	"context"
	"encoding/json"
	"fmt"
)

// finishRun merges the ordered partial results into the final report. The
// merge executes in a freshly opened blank window so no page-supplied script
// can interfere with it. Whatever happens to the merge itself, the temporary
// window is closed and the original window restored before returning.
func (b *Builder) finishRun(ctx context.Context, partials []PartialResult, opts json.RawMessage) (*Results, error) {
	orig, err := b.drv.CurrentWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("axe: current window handle: %w", err)
	}

	win, err := b.drv.CreateWindow(ctx, "tab")
	if err != nil || win == "" {
		return nil, &WindowError{
			Hint: "could not open a window for the finish run; check that popup blockers are disabled",
			Err:  err,
		}
	}

	if err := b.drv.SwitchToWindow(ctx, win); err != nil {
		return nil, &WindowError{
			Hint: "switching to the finish-run window failed; this usually indicates a browser/driver version mismatch",
			Err:  err,
		}
	}

	raw, mergeErr := b.mergeInWindow(ctx, partials, opts)

	// Cleanup happens regardless of merge outcome; the caller must get the
	// original window back even when the merge blew up.
	if err := b.drv.CloseWindow(ctx); err != nil {
		b.logger.Warn("axe: close finish-run window failed", "error", err)
	}
	if err := b.drv.SwitchToWindow(ctx, orig); err != nil {
		return nil, &WindowError{
			Hint: "restoring the original window failed",
			Err:  err,
		}
	}

	if mergeErr != nil {
		return nil, &MergeError{Err: mergeErr}
	}
	return decodeResults(raw)
}

// mergeInWindow runs inside the temporary window: navigate to a neutral
// blank page, inject the engine, invoke the merge.
func (b *Builder) mergeInWindow(ctx context.Context, partials []PartialResult, opts json.RawMessage) (json.RawMessage, error) {
	if err := b.drv.NavigateTo(ctx, "about:blank"); err != nil {
		return nil, fmt.Errorf("navigate finish-run window: %w", err)
	}
	if _, err := b.drv.Execute(ctx, composedScript(b.source, b.legacy)); err != nil {
		return nil, fmt.Errorf("inject engine in finish-run window: %w", err)
	}
	raw, err := b.drv.Execute(ctx, finishRunScript, opts, partials)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
