// Package shield provides reusable HTTP security middleware for the scan API.
// It consolidates security headers, rate limiting, body limits, and request
// tracing into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(1 << 20))
//	r.Use(shield.RequestID)
//	r.Use(shield.NewRateLimiter(rules).Middleware)
//
// Or apply the default API stack in one call:
//
//	stack, rl := shield.DefaultAPIStack(rules)
//	rl.StartGC(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware stack for the scan API,
// ordered SecurityHeaders, MaxBody, RequestID, RateLimiter, plus the rate
// limiter handle so callers can start its bucket GC. Health checks
// (/healthz) bypass rate limiting.
func DefaultAPIStack(rules map[string]RateLimitConfig) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(rules, "/healthz")
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
		RequestID,
		rl.Middleware,
	}, rl
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
