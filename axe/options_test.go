package axe

import (
	"encoding/json"
	"testing"
)

func decodeOpts(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode options: %v", err)
	}
	return m
}

// Rule and tag selection are mutually exclusive: the most recent call wins,
// in either order.
func TestRulesAndTagsMutuallyExclusive(t *testing.T) {
	b := mustBuilder(t, newFakeDriver(&fakeFrame{}))

	b.WithRules("rule-a").WithTags("wcag2a")
	m := decodeOpts(t, marshalOptions(b.options, b.only, b.rules))
	only := m["runOnly"].(map[string]any)
	if only["type"] != "tag" {
		t.Errorf("after WithRules→WithTags, runOnly type = %v, want tag", only["type"])
	}

	b.WithTags("wcag2a").WithRules("rule-a", "rule-b")
	m = decodeOpts(t, marshalOptions(b.options, b.only, b.rules))
	only = m["runOnly"].(map[string]any)
	if only["type"] != "rule" {
		t.Errorf("after WithTags→WithRules, runOnly type = %v, want rule", only["type"])
	}
	if vals := only["values"].([]any); len(vals) != 2 {
		t.Errorf("runOnly values = %v", vals)
	}
}

func TestDisableRules(t *testing.T) {
	b := mustBuilder(t, newFakeDriver(&fakeFrame{}))
	b.DisableRules("color-contrast", "region")

	m := decodeOpts(t, marshalOptions(b.options, b.only, b.rules))
	rules := m["rules"].(map[string]any)
	for _, id := range []string{"color-contrast", "region"} {
		state, ok := rules[id].(map[string]any)
		if !ok || state["enabled"] != false {
			t.Errorf("rule %s = %v, want enabled:false", id, rules[id])
		}
	}
}

// Base options are forwarded verbatim, with selections overlaid on top.
func TestBaseOptionsForwarded(t *testing.T) {
	b := mustBuilder(t, newFakeDriver(&fakeFrame{}))
	b.Options(map[string]any{"resultTypes": []string{"violations"}, "iframes": true})
	b.WithTags("wcag2aa")

	m := decodeOpts(t, marshalOptions(b.options, b.only, b.rules))
	if m["iframes"] != true {
		t.Error("base option lost")
	}
	if _, ok := m["runOnly"]; !ok {
		t.Error("overlay lost")
	}

	// Options replaces the previous base wholesale.
	b.Options(map[string]any{"iframes": false})
	m = decodeOpts(t, marshalOptions(b.options, b.only, b.rules))
	if _, ok := m["resultTypes"]; ok {
		t.Error("Options did not replace previous base")
	}
}
