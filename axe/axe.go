// Package axe drives an accessibility-analysis engine across a remotely
// controlled browser session and produces one consolidated report.
//
// The page may contain an arbitrary tree of same-origin and cross-origin
// frames, but the engine only ever runs inside a single frame's script
// context. The orchestrator therefore enters each reachable frame through
// the remote-control driver, runs a partial analysis there, and merges the
// fragments in a freshly opened blank window where no page script can
// interfere. When the injected engine predates partial runs, or the caller
// asked for it, a legacy whole-document run is used instead.
//
// The orchestrator is single-threaded by design: the driver's browsing
// context is global mutable state, so every frame switch is awaited in
// sequence and restored before control returns to the caller.
package axe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Builder accumulates scan configuration and runs the analysis. Methods
// return the builder for chaining; configuration is read at the next
// Analyze call. Not safe for concurrent use.
type Builder struct {
	drv    Driver
	source string
	logger *slog.Logger

	includes       []Selector
	excludes       []Selector
	disabledFrames []string

	options map[string]any
	only    *runOnly
	rules   map[string]ruleState

	legacy bool
}

// Option configures a Builder at construction.
type Option func(*Builder)

// WithLogger sets the logger for per-frame failure reporting.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// New creates a Builder that drives the given engine source through drv.
// It fails when drv is nil or the source is empty; both are configuration
// errors with no meaningful recovery at scan time.
func New(drv Driver, source string, opts ...Option) (*Builder, error) {
	if drv == nil {
		return nil, fmt.Errorf("axe: driver is nil")
	}
	if source == "" {
		return nil, fmt.Errorf("axe: engine source is empty")
	}
	b := &Builder{drv: drv, source: source}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b, nil
}

// SourceFromFile reads the engine source from path.
func SourceFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("axe: read engine source: %w", err)
	}
	return string(data), nil
}

// Include adds a selector to analyze. Multiple path entries address an
// element through nested frames, each entry narrowing into the previous.
func (b *Builder) Include(path ...string) *Builder {
	b.includes = append(b.includes, Selector(path))
	return b
}

// Exclude adds a selector to skip. Excludes narrow the scan relative to
// the includes, never widen it.
func (b *Builder) Exclude(path ...string) *Builder {
	b.excludes = append(b.excludes, Selector(path))
	return b
}

// DisableFrame excludes frames matching the CSS selector from injection and
// analysis. Use Escape for selector parts built from user strings.
func (b *Builder) DisableFrame(selector string) *Builder {
	b.disabledFrames = append(b.disabledFrames, selector)
	return b
}

// Options replaces the base options forwarded verbatim to the engine.
// WithRules, WithTags, and DisableRules overlay it.
func (b *Builder) Options(opts map[string]any) *Builder {
	b.options = opts
	return b
}

// WithRules limits the run to the given rule IDs. Replaces any previous
// WithRules or WithTags selection; the two modes are mutually exclusive.
func (b *Builder) WithRules(ruleIDs ...string) *Builder {
	b.only = &runOnly{Type: "rule", Values: ruleIDs}
	return b
}

// WithTags limits the run to rules carrying the given tags. Replaces any
// previous WithRules or WithTags selection.
func (b *Builder) WithTags(tags ...string) *Builder {
	b.only = &runOnly{Type: "tag", Values: tags}
	return b
}

// DisableRules turns off the given rules for the run.
func (b *Builder) DisableRules(ruleIDs ...string) *Builder {
	if b.rules == nil {
		b.rules = make(map[string]ruleState, len(ruleIDs))
	}
	for _, id := range ruleIDs {
		b.rules[id] = ruleState{Enabled: false}
	}
	return b
}

// SetLegacyMode forces the whole-document fallback path: no cross-origin
// messaging whitelist, no partial aggregation. Cross-origin frames are then
// silently absent from results.
func (b *Builder) SetLegacyMode(legacy bool) *Builder {
	b.legacy = legacy
	return b
}

// Analyze runs the scan against the driver's current page and returns the
// merged report. Per-frame failures inside the partial traversal are
// tolerated and recorded as null fragments; every other failure aborts the
// call.
func (b *Builder) Analyze(ctx context.Context) (*Results, error) {
	sc := normalizeContext(b.includes, b.excludes, b.disabledFrames)
	opts := marshalOptions(b.options, b.only, b.rules)

	// The engine must exist in the top frame before anything else: the
	// support probe and frame-context discovery both call into it.
	if _, err := b.drv.Execute(ctx, composedScript(b.source, b.legacy)); err != nil {
		return nil, fmt.Errorf("axe: inject engine: %w", err)
	}

	partialSupported, err := b.supportsPartial(ctx)
	if err != nil {
		return nil, err
	}

	if b.legacy || !partialSupported {
		return b.runLegacy(ctx, sc, opts)
	}

	partials, err := b.runPartialRecursive(ctx, sc, opts)
	if err != nil {
		return nil, err
	}
	return b.finishRun(ctx, partials, opts)
}

// AnalyzeCallback runs Analyze and delivers the outcome through cb, which
// becomes the sole error channel: AnalyzeCallback itself never reports
// failure. On success cb receives (nil, results); on failure (err, nil).
func (b *Builder) AnalyzeCallback(ctx context.Context, cb func(error, *Results)) {
	res, err := b.Analyze(ctx)
	if err != nil {
		cb(err, nil)
		return
	}
	cb(nil, res)
}

// supportsPartial probes whether the injected engine can do cross-frame
// partial runs.
func (b *Builder) supportsPartial(ctx context.Context) (bool, error) {
	raw, err := b.drv.Execute(ctx, probeScript)
	if err != nil {
		return false, fmt.Errorf("axe: probe partial support: %w", err)
	}
	return string(raw) == "true", nil
}
