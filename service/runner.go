package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/axedrive/axe"
	"github.com/hazyhaar/axedrive/browser"
)

// ScanRequest describes one scan to run.
type ScanRequest struct {
	URL            string   `json:"url"`
	Include        []string `json:"include,omitempty"`
	Exclude        []string `json:"exclude,omitempty"`
	Rules          []string `json:"rules,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	DisableRules   []string `json:"disable_rules,omitempty"`
	DisabledFrames []string `json:"disabled_frames,omitempty"`
	Legacy         bool     `json:"legacy,omitempty"`
}

// ScanRunner executes a scan and returns the merged report.
type ScanRunner interface {
	Run(ctx context.Context, req ScanRequest) (*axe.Results, error)
}

// BrowserRunner runs scans in pages opened by a browser.Manager.
type BrowserRunner struct {
	manager       *browser.Manager
	source        string
	timeout       time.Duration
	disabledRules []string
	logger        *slog.Logger
}

// NewBrowserRunner creates a runner. source is the engine JavaScript bundle;
// disabledRules are applied to every scan on top of the per-request options.
func NewBrowserRunner(m *browser.Manager, source string, cfg ScanConfig, logger *slog.Logger) *BrowserRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserRunner{
		manager:       m,
		source:        source,
		timeout:       cfg.Timeout,
		disabledRules: cfg.DisabledRules,
		logger:        logger,
	}
}

// Run opens a fresh page on the target URL, runs the orchestrated scan and
// closes the page. Each scan gets its own page so state never leaks between
// scans.
func (r *BrowserRunner) Run(ctx context.Context, req ScanRequest) (*axe.Results, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	drv, err := r.manager.OpenDriver(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("service: open page: %w", err)
	}
	defer drv.Page().Close()

	b, err := axe.New(drv, r.source, axe.WithLogger(r.logger))
	if err != nil {
		return nil, fmt.Errorf("service: configure scan: %w", err)
	}

	for _, sel := range req.Include {
		b.Include(sel)
	}
	for _, sel := range req.Exclude {
		b.Exclude(sel)
	}
	for _, sel := range req.DisabledFrames {
		b.DisableFrame(sel)
	}
	if len(req.Rules) > 0 {
		b.WithRules(req.Rules...)
	}
	if len(req.Tags) > 0 {
		b.WithTags(req.Tags...)
	}
	if len(req.DisableRules) > 0 {
		b.DisableRules(req.DisableRules...)
	}
	if len(r.disabledRules) > 0 {
		b.DisableRules(r.disabledRules...)
	}
	if req.Legacy {
		b.SetLegacyMode(true)
	}

	return b.Analyze(ctx)
}
