package axe

import "context"

// injectIntoFrames (legacy path) ensures the composed script has executed in
// the current frame and in every nested frame reachable from it, except
// frames matching a disabled selector. Per-element failures are logged and
// do not stop injection into the remaining siblings; a frame that vanished
// between enumeration and descent is simply skipped.
func (b *Builder) injectIntoFrames(ctx context.Context) error {
	return b.injectRecursive(ctx, composedScript(b.source, b.legacy))
}

func (b *Builder) injectRecursive(ctx context.Context, script string) error {
	if _, err := b.drv.Execute(ctx, script); err != nil {
		return err
	}

	for _, tag := range []string{"frame", "iframe"} {
		els, err := b.drv.FindAll(ctx, frameSelector(tag, b.disabledFrames))
		if err != nil {
			b.logger.Warn("axe: enumerate frames failed", "tag", tag, "error", err)
			continue
		}
		for _, el := range els {
			ok, err := b.drv.ElementExists(ctx, el)
			if err != nil || !ok {
				// Detached while we were working on its siblings.
				continue
			}
			if err := b.injectFrame(ctx, script, el); err != nil {
				b.logger.Warn("axe: frame injection failed", "tag", tag, "error", err)
			}
		}
	}
	return nil
}

// injectFrame descends into el, injects recursively, and restores the
// browsing context to the parent even when injection fails partway.
func (b *Builder) injectFrame(ctx context.Context, script string, el ElementRef) error {
	if err := b.drv.SwitchToFrame(ctx, el); err != nil {
		return err
	}
	ierr := b.injectRecursive(ctx, script)
	perr := b.drv.SwitchToParentFrame(ctx)
	if ierr != nil {
		return ierr
	}
	return perr
}
