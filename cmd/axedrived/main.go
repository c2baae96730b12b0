// Command axedrived is the accessibility scan daemon: an HTTP API that
// accepts scan requests, runs them in a managed Chrome instance, and stores
// the reports in SQLite. Optionally exposes the same operations as MCP tools
// on /mcp.
//
// Usage:
//
//	axedrived -config axedrived.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/axedrive/axe"
	"github.com/hazyhaar/axedrive/browser"
	"github.com/hazyhaar/axedrive/dbopen"
	"github.com/hazyhaar/axedrive/scanstore"
	"github.com/hazyhaar/axedrive/service"
)

func main() {
	configPath := flag.String("config", "axedrived.yaml", "path to the YAML config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("axedrived: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg, err := service.LoadFile(configPath)
	if err != nil {
		return err
	}

	source, err := axe.SourceFromFile(cfg.AxeSource)
	if err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(scanstore.Schema))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headful:         cfg.Browser.Headful,
		Stealth:         cfg.Browser.Stealth,
		XvfbDisplay:     cfg.Browser.XvfbDisplay,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		Logger:          logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	runner := service.NewBrowserRunner(mgr, source, cfg.Scan, logger)
	svc := service.New(ctx, cfg, scanstore.New(db), runner, logger)

	r := chi.NewRouter()
	r.Mount("/", svc.Router())

	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "axedrive",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		r.Mount("/mcp", mcp.NewStreamableHTTPHandler(
			func(*http.Request) *mcp.Server { return mcpSrv }, nil))
		logger.Info("MCP tools mounted", "path", "/mcp")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("axedrived listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	svc.Wait()
	logger.Info("axedrived stopped")
	return nil
}
