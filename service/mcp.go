package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/axedrive/kit"
	"github.com/hazyhaar/axedrive/scanstore"
	"github.com/hazyhaar/axedrive/urlcheck"
)

// RegisterMCP registers the scan tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerScanTool(srv)
	s.registerGetScanTool(srv)
}

// endpointLogging logs every invocation of a tool endpoint with the
// transport and request ID carried in the context.
func (s *Service) endpointLogging(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			logger := s.logger.With(
				"endpoint", name,
				"transport", kit.GetTransport(ctx),
			)
			if id := kit.GetRequestID(ctx); id != "" {
				logger = logger.With("request_id", id)
			}
			resp, err := next(ctx, req)
			if err != nil {
				logger.Warn("endpoint failed", "error", err)
				return nil, err
			}
			logger.Info("endpoint ok")
			return resp, nil
		}
	}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- scan ---

// mcpScanResult is the synchronous tool response: the stored scan row with
// its counts, without the full report payload.
type mcpScanResult struct {
	ScanID       string `json:"scan_id"`
	Status       string `json:"status"`
	Violations   int    `json:"violation_count"`
	Passes       int    `json:"pass_count"`
	Incomplete   int    `json:"incomplete_count"`
	Inapplicable int    `json:"inapplicable_count"`
	Error        string `json:"error,omitempty"`
}

func (s *Service) registerScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "axe_scan",
		Description: "Run an accessibility scan against a URL and return the result counts. Use axe_get_scan for the full report.",
		InputSchema: inputSchema(map[string]any{
			"url":           map[string]any{"type": "string", "description": "Page URL to scan"},
			"rules":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Limit the scan to these rule IDs"},
			"tags":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Limit the scan to rules carrying these tags"},
			"disable_rules": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Rule IDs to skip"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*ScanRequest)
		if len(r.Rules) > 0 && len(r.Tags) > 0 {
			return nil, errors.New("rules and tags are mutually exclusive")
		}
		if !s.cfg.Scan.AllowPrivate {
			if err := urlcheck.Validate(r.URL); err != nil {
				return nil, err
			}
		}

		scan, err := s.store.Create(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		if err := s.store.MarkRunning(ctx, scan.ID); err != nil {
			return nil, err
		}

		// MCP callers wait for the result, so run synchronously.
		results, err := s.runner.Run(ctx, *r)
		if err != nil {
			if ferr := s.store.Fail(context.WithoutCancel(ctx), scan.ID, err.Error()); ferr != nil {
				s.logger.Error("record failure", "scan_id", scan.ID, "error", ferr)
			}
			return mcpScanResult{ScanID: scan.ID, Status: scanstore.StatusFailed, Error: err.Error()}, nil
		}
		if err := s.store.Complete(ctx, scan.ID, results); err != nil {
			return nil, err
		}
		return mcpScanResult{
			ScanID:       scan.ID,
			Status:       scanstore.StatusDone,
			Violations:   len(results.Violations),
			Passes:       len(results.Passes),
			Incomplete:   len(results.Incomplete),
			Inapplicable: len(results.Inapplicable),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r ScanRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.endpointLogging("axe_scan"))(endpoint), decode)
}

// --- get scan ---

type getScanReq struct {
	ScanID string `json:"scan_id"`
}

func (s *Service) registerGetScanTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "axe_get_scan",
		Description: "Fetch a stored accessibility scan including its full report.",
		InputSchema: inputSchema(map[string]any{
			"scan_id": map[string]any{"type": "string", "description": "Scan ID returned by axe_scan"},
		}, []string{"scan_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*getScanReq)
		return s.store.Get(ctx, r.ScanID)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r getScanReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Chain(s.endpointLogging("axe_get_scan"))(endpoint), decode)
}
