package axe

import "encoding/json"

// runOnly selects rules either by ID or by tag. The two modes are mutually
// exclusive: setting one replaces any previous selection of either kind.
type runOnly struct {
	Type   string   `json:"type"`
	Values []string `json:"values"`
}

type ruleState struct {
	Enabled bool `json:"enabled"`
}

// marshalOptions builds the options object forwarded verbatim to the engine:
// the caller-supplied base options overlaid with runOnly and per-rule state.
func marshalOptions(base map[string]any, only *runOnly, rules map[string]ruleState) json.RawMessage {
	opts := make(map[string]any, len(base)+2)
	for k, v := range base {
		opts[k] = v
	}
	if only != nil {
		opts["runOnly"] = only
	}
	if len(rules) > 0 {
		opts["rules"] = rules
	}
	data, err := json.Marshal(opts)
	if err != nil {
		// base came from the caller as plain maps and slices; this only
		// fires on non-serializable values they put there.
		return json.RawMessage("{}")
	}
	return data
}
