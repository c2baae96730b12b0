package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/axedrive/kit"
	"github.com/hazyhaar/axedrive/scanstore"
	"github.com/hazyhaar/axedrive/shield"
	"github.com/hazyhaar/axedrive/urlcheck"
)

// Service wires the scan runner, the store and the HTTP surface together.
type Service struct {
	cfg    *Config
	store  *scanstore.Store
	runner ScanRunner
	logger *slog.Logger

	// baseCtx bounds background scan execution: cancelling it stops
	// in-flight scans during shutdown.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New creates a Service. baseCtx bounds background scans.
func New(baseCtx context.Context, cfg *Config, store *scanstore.Store, runner ScanRunner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		runner:  runner,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Wait blocks until all in-flight background scans have finished.
func (s *Service) Wait() { s.wg.Wait() }

// Router builds the chi router with the full middleware stack.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	var rules map[string]shield.RateLimitConfig
	if !s.cfg.RateLimit.Disabled {
		rules = map[string]shield.RateLimitConfig{
			"POST /api/scans": {
				MaxRequests:   s.cfg.RateLimit.MaxRequests,
				WindowSeconds: s.cfg.RateLimit.WindowSeconds,
				Enabled:       true,
			},
		}
	}
	stack, rl := shield.DefaultAPIStack(rules)
	rl.StartGC(s.baseCtx.Done())
	for _, mw := range stack {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/scans", s.handleCreateScan)
		r.Get("/scans", s.handleListScans)
		r.Get("/scans/{id}", s.handleGetScan)
		r.Get("/scans/{id}/violations", s.handleScanViolations)
	})

	return r
}

// authenticate checks the bearer token against the configured bcrypt hash.
// With no hash configured the API is open.
func (s *Service) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey.Hash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bcrypt.CompareHashAndPassword([]byte(s.cfg.APIKey.Hash), []byte(token)) != nil {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if len(req.Rules) > 0 && len(req.Tags) > 0 {
		writeError(w, http.StatusBadRequest, "rules and tags are mutually exclusive")
		return
	}
	if !s.cfg.Scan.AllowPrivate {
		if err := urlcheck.Validate(req.URL); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	scan, err := s.store.Create(r.Context(), req.URL)
	if err != nil {
		shield.GetLogger(r.Context()).Error("create scan", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create scan")
		return
	}

	shield.GetLogger(r.Context()).Info("scan queued",
		"scan_id", scan.ID,
		"client_ip", kit.GetRemoteAddr(r.Context()))

	s.wg.Add(1)
	go s.execute(scan.ID, kit.GetRequestID(r.Context()), req)

	writeJSON(w, http.StatusAccepted, scan)
}

// execute runs one scan in the background and records the outcome. The
// originating request ID ties its log lines back to the submitting request.
func (s *Service) execute(id, requestID string, req ScanRequest) {
	defer s.wg.Done()
	ctx := s.baseCtx
	logger := s.logger.With("scan_id", id, "url", req.URL)
	if requestID != "" {
		logger = logger.With("request_id", requestID)
	}

	if err := s.store.MarkRunning(ctx, id); err != nil {
		logger.Error("mark running", "error", err)
		return
	}

	results, err := s.runner.Run(ctx, req)
	if err != nil {
		logger.Warn("scan failed", "error", err)
		if ferr := s.store.Fail(context.WithoutCancel(ctx), id, err.Error()); ferr != nil {
			logger.Error("record failure", "error", ferr)
		}
		return
	}

	if err := s.store.Complete(context.WithoutCancel(ctx), id, results); err != nil {
		logger.Error("record results", "error", err)
		return
	}
	logger.Info("scan done",
		"violations", len(results.Violations),
		"passes", len(results.Passes))
}

func (s *Service) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = n
	}

	scans, err := s.store.List(r.Context(), limit)
	if err != nil {
		shield.GetLogger(r.Context()).Error("list scans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list scans")
		return
	}
	if scans == nil {
		scans = []scanstore.Scan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

func (s *Service) handleGetScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, scanstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		shield.GetLogger(r.Context()).Error("get scan", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return
	}
	writeJSON(w, http.StatusOK, scan)
}

func (s *Service) handleScanViolations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, scanstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
			return
		}
		shield.GetLogger(r.Context()).Error("get scan", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load scan")
		return
	}

	violations, err := s.store.Violations(r.Context(), id)
	if err != nil {
		shield.GetLogger(r.Context()).Error("load violations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load violations")
		return
	}
	if violations == nil {
		violations = []scanstore.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"violations": violations})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
