package axe

import (
	"encoding/json"
	"fmt"
)

// PartialResult is one opaque result fragment scoped to a single frame. A
// nil value is the failure marker for a frame that could not be reached or
// scanned; it marshals to JSON null, which the engine's merge step accepts.
type PartialResult = json.RawMessage

// Results is the final merged report. Produced once per Analyze call and
// not retained by the orchestrator afterward.
type Results struct {
	TestEngine   TestEngine      `json:"testEngine"`
	URL          string          `json:"url"`
	Timestamp    string          `json:"timestamp"`
	ToolOptions  json.RawMessage `json:"toolOptions,omitempty"`
	Violations   []RuleResult    `json:"violations"`
	Passes       []RuleResult    `json:"passes"`
	Incomplete   []RuleResult    `json:"incomplete"`
	Inapplicable []RuleResult    `json:"inapplicable"`

	// Raw is the untouched report JSON, for callers that persist or
	// forward it without caring about the typed view.
	Raw json.RawMessage `json:"-"`
}

// TestEngine identifies the analysis engine that produced the report.
type TestEngine struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RuleResult is the outcome of one rule across all matched nodes.
type RuleResult struct {
	ID          string       `json:"id"`
	Impact      string       `json:"impact,omitempty"`
	Description string       `json:"description"`
	Help        string       `json:"help"`
	HelpURL     string       `json:"helpUrl"`
	Tags        []string     `json:"tags"`
	Nodes       []NodeResult `json:"nodes"`
}

// NodeResult is one matched element within a rule result.
type NodeResult struct {
	HTML    string   `json:"html"`
	Impact  string   `json:"impact,omitempty"`
	Target  Selector `json:"target"`
	Summary string   `json:"failureSummary,omitempty"`
}

func decodeResults(raw json.RawMessage) (*Results, error) {
	var res Results
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("axe: decode report: %w", err)
	}
	res.Raw = raw
	return &res, nil
}
