package axe

import (
	"context"
	"encoding/json"
	"fmt"
)

// runLegacy is the fallback scan: inject the engine into the whole frame
// tree, then run a single whole-document analysis from the top frame. No
// cross-frame partial aggregation happens; a cross-origin frame simply
// cannot be entered and is silently absent from the report. Unlike the
// partial path, no failure marker is produced for it.
func (b *Builder) runLegacy(ctx context.Context, sc *ScanContext, opts json.RawMessage) (*Results, error) {
	if err := b.injectIntoFrames(ctx); err != nil {
		return nil, fmt.Errorf("axe: legacy injection: %w", err)
	}

	raw, err := b.drv.Execute(ctx, legacyRunScript, sc, opts)
	if err != nil {
		return nil, fmt.Errorf("axe: legacy run: %w", err)
	}
	var report json.RawMessage = raw
	return decodeResults(report)
}
