// Command axedrive runs a one-shot accessibility scan and prints the report.
//
// Usage:
//
//	axedrive -url https://example.com -axe-source axe.min.js
//	axedrive -url https://example.com -axe-source axe.min.js -tags wcag2a,wcag2aa
//	axedrive -url https://example.com -axe-source axe.min.js -rules image-alt,label
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hazyhaar/axedrive/axe"
	"github.com/hazyhaar/axedrive/browser"
)

func main() {
	pageURL := flag.String("url", "", "page URL to scan")
	sourcePath := flag.String("axe-source", "axe.min.js", "path to the axe-core JavaScript bundle")
	rules := flag.String("rules", "", "comma-separated rule IDs to run exclusively")
	tags := flag.String("tags", "", "comma-separated tags to run exclusively")
	disableRules := flag.String("disable-rules", "", "comma-separated rule IDs to skip")
	include := flag.String("include", "", "comma-separated CSS selectors to include")
	exclude := flag.String("exclude", "", "comma-separated CSS selectors to exclude")
	legacy := flag.Bool("legacy", false, "force the legacy single-injection scan")
	remote := flag.String("remote", "", "WebSocket URL of an external Chrome instance")
	headful := flag.Bool("headful", false, "run Chrome headful on Xvfb")
	stealth := flag.Bool("stealth", false, "apply anti-detection measures")
	timeout := flag.Duration("timeout", 2*time.Minute, "scan timeout")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pageURL == "" {
		fmt.Fprintln(os.Stderr, "usage: axedrive -url <url> [-axe-source <file>]")
		os.Exit(1)
	}
	if *rules != "" && *tags != "" {
		fmt.Fprintln(os.Stderr, "axedrive: -rules and -tags are mutually exclusive")
		os.Exit(1)
	}

	if err := run(ctx, logger, options{
		pageURL:      *pageURL,
		sourcePath:   *sourcePath,
		rules:        splitList(*rules),
		tags:         splitList(*tags),
		disableRules: splitList(*disableRules),
		include:      splitList(*include),
		exclude:      splitList(*exclude),
		legacy:       *legacy,
		remote:       *remote,
		headful:      *headful,
		stealth:      *stealth,
		timeout:      *timeout,
	}); err != nil {
		logger.Error("axedrive: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	pageURL      string
	sourcePath   string
	rules        []string
	tags         []string
	disableRules []string
	include      []string
	exclude      []string
	legacy       bool
	remote       string
	headful      bool
	stealth      bool
	timeout      time.Duration
}

func run(ctx context.Context, logger *slog.Logger, opts options) error {
	source, err := axe.SourceFromFile(opts.sourcePath)
	if err != nil {
		return err
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL: opts.remote,
		Headful:   opts.headful,
		Stealth:   opts.stealth,
		Logger:    logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	scanCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	drv, err := mgr.OpenDriver(scanCtx, opts.pageURL)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer drv.Page().Close()

	b, err := axe.New(drv, source, axe.WithLogger(logger))
	if err != nil {
		return err
	}
	for _, sel := range opts.include {
		b.Include(sel)
	}
	for _, sel := range opts.exclude {
		b.Exclude(sel)
	}
	if len(opts.rules) > 0 {
		b.WithRules(opts.rules...)
	}
	if len(opts.tags) > 0 {
		b.WithTags(opts.tags...)
	}
	if len(opts.disableRules) > 0 {
		b.DisableRules(opts.disableRules...)
	}
	if opts.legacy {
		b.SetLegacyMode(true)
	}

	results, err := b.Analyze(scanCtx)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	logger.Info("scan done",
		"url", opts.pageURL,
		"violations", len(results.Violations),
		"passes", len(results.Passes),
		"incomplete", len(results.Incomplete))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if results.Raw != nil {
		var pretty any
		if err := json.Unmarshal(results.Raw, &pretty); err == nil {
			return enc.Encode(pretty)
		}
	}
	return enc.Encode(results)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
