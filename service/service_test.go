package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/axedrive/axe"
	"github.com/hazyhaar/axedrive/dbopen"
	"github.com/hazyhaar/axedrive/kit"
	"github.com/hazyhaar/axedrive/scanstore"
)

type fakeRunner struct {
	results *axe.Results
	err     error
	gotReq  ScanRequest
}

func (f *fakeRunner) Run(_ context.Context, req ScanRequest) (*axe.Results, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func fakeResults() *axe.Results {
	return &axe.Results{
		TestEngine: axe.TestEngine{Name: "axe-core", Version: "4.10.2"},
		URL:        "https://example.com/",
		Violations: []axe.RuleResult{{
			ID: "image-alt",
			Nodes: []axe.NodeResult{{
				HTML:   `<img src="a.png">`,
				Target: axe.Selector{"img"},
			}},
		}},
		Passes: []axe.RuleResult{{ID: "document-title"}},
	}
}

func newTestService(t *testing.T, runner ScanRunner, mutate ...func(*Config)) *Service {
	t.Helper()
	cfg := &Config{
		Scan: ScanConfig{AllowPrivate: true},
		RateLimit: RateLimitConfig{Disabled: true},
	}
	cfg.ApplyDefaults()
	for _, fn := range mutate {
		fn(cfg)
	}
	db := dbopen.OpenMemory(t, dbopen.WithSchema(scanstore.Schema))
	return New(context.Background(), cfg, scanstore.New(db), runner, nil)
}

func postScan(t *testing.T, srv http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/scans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	return rec
}

func TestCreateScanLifecycle(t *testing.T) {
	runner := &fakeRunner{results: fakeResults()}
	s := newTestService(t, runner)
	srv := s.Router()

	rec := postScan(t, srv, `{"url":"https://example.com/","tags":["wcag2a"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created scanstore.Scan
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != scanstore.StatusPending {
		t.Fatalf("created = %+v", created)
	}

	s.Wait()

	if got := runner.gotReq.Tags; len(got) != 1 || got[0] != "wcag2a" {
		t.Fatalf("runner tags = %v", got)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/scans/"+created.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got scanstore.Scan
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != scanstore.StatusDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
	if got.Violations != 1 || got.Passes != 1 {
		t.Fatalf("counts = %d/%d", got.Violations, got.Passes)
	}
}

func TestCreateScanRunnerFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("navigation timeout")}
	s := newTestService(t, runner)
	srv := s.Router()

	rec := postScan(t, srv, `{"url":"https://example.com/"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	var created scanstore.Scan
	json.Unmarshal(rec.Body.Bytes(), &created)

	s.Wait()

	got, err := s.store.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != scanstore.StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "navigation timeout") {
		t.Fatalf("error = %q", got.Error)
	}
}

func TestCreateScanValidation(t *testing.T) {
	s := newTestService(t, &fakeRunner{results: fakeResults()})
	srv := s.Router()

	tests := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"bad json", `{`},
		{"rules and tags", `{"url":"https://example.com/","rules":["image-alt"],"tags":["wcag2a"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postScan(t, srv, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateScanRejectsPrivateTarget(t *testing.T) {
	s := newTestService(t, &fakeRunner{results: fakeResults()}, func(cfg *Config) {
		cfg.Scan.AllowPrivate = false
	})
	srv := s.Router()

	rec := postScan(t, srv, `{"url":"http://127.0.0.1:8080/admin"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "private") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGetScanNotFound(t *testing.T) {
	s := newTestService(t, &fakeRunner{})
	srv := s.Router()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/scans/no-such-id", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListScans(t *testing.T) {
	runner := &fakeRunner{results: fakeResults()}
	s := newTestService(t, runner)
	srv := s.Router()

	postScan(t, srv, `{"url":"https://example.com/a"}`)
	postScan(t, srv, `{"url":"https://example.com/b"}`)
	s.Wait()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/scans", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Scans []scanstore.Scan `json:"scans"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Scans) != 2 {
		t.Fatalf("scans = %d, want 2", len(resp.Scans))
	}
}

func TestScanViolationsEndpoint(t *testing.T) {
	runner := &fakeRunner{results: fakeResults()}
	s := newTestService(t, runner)
	srv := s.Router()

	rec := postScan(t, srv, `{"url":"https://example.com/"}`)
	var created scanstore.Scan
	json.Unmarshal(rec.Body.Bytes(), &created)
	s.Wait()

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/scans/"+created.ID+"/violations", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Violations []scanstore.Violation `json:"violations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Violations) != 1 || resp.Violations[0].RuleID != "image-alt" {
		t.Fatalf("violations = %+v", resp.Violations)
	}
}

func TestAuthentication(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret-key"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestService(t, &fakeRunner{}, func(cfg *Config) {
		cfg.APIKey.Hash = string(hash)
	})
	srv := s.Router()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/api/scans", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/scans", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/scans", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status = %d, want 200", rec.Code)
	}

	// Health check stays open.
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d, want 200", rec.Code)
	}
}

func TestEndpointLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	s := newTestService(t, &fakeRunner{})
	s.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := kit.WithTransport(context.Background(), "mcp")
	ctx = kit.WithRequestID(ctx, "req_test")

	wrapped := kit.Chain(s.endpointLogging("axe_scan"))(func(_ context.Context, req any) (any, error) {
		return req, nil
	})
	resp, err := wrapped(ctx, "payload")
	if err != nil || resp != "payload" {
		t.Fatalf("wrapped endpoint = (%v, %v)", resp, err)
	}
	out := buf.String()
	for _, want := range []string{`"transport":"mcp"`, `"request_id":"req_test"`, `"endpoint":"axe_scan"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}

	buf.Reset()
	sentinel := errors.New("scan blew up")
	wrapped = kit.Chain(s.endpointLogging("axe_scan"))(func(context.Context, any) (any, error) {
		return nil, sentinel
	})
	if _, err := wrapped(ctx, nil); !errors.Is(err, sentinel) {
		t.Fatalf("error not propagated: %v", err)
	}
	if !strings.Contains(buf.String(), "endpoint failed") {
		t.Errorf("failure not logged: %s", buf.String())
	}
}

func TestBackgroundScanLogsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	runner := &fakeRunner{results: fakeResults()}
	s := newTestService(t, runner)
	s.logger = slog.New(slog.NewJSONHandler(&buf, nil))
	srv := s.Router()

	rec := postScan(t, srv, `{"url":"https://example.com/"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	s.Wait()

	// The router's RequestID middleware tags the request; the background
	// scan logger inherits that ID.
	id := rec.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("no X-Request-ID header")
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id":"`+id+`"`) {
		t.Errorf("scan logs missing request_id %s: %s", id, out)
	}
	if !strings.Contains(out, "scan done") {
		t.Errorf("scan completion not logged: %s", out)
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Listen == "" || cfg.DBPath == "" || cfg.AxeSource == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Scan.Timeout <= 0 || cfg.Browser.NavigateTimeout <= 0 {
		t.Fatal("timeout defaults not applied")
	}
	if cfg.RateLimit.MaxRequests <= 0 || cfg.RateLimit.WindowSeconds <= 0 {
		t.Fatal("rate limit defaults not applied")
	}
}
