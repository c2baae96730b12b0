package axe

import (
	"encoding/json"
	"fmt"
)

// Selector addresses an element, optionally through nested frames or shadow
// roots: a single entry is a plain CSS selector, multiple entries form a
// path where each entry narrows into the previous one.
type Selector []string

// MarshalJSON always emits the array form; the engine accepts it for both
// plain selectors and frame paths.
func (s Selector) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(s))
}

// UnmarshalJSON accepts either a bare string or an array of strings, the two
// shapes the engine produces.
func (s *Selector) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = Selector{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("axe: selector must be a string or string array: %w", err)
	}
	*s = Selector(many)
	return nil
}

// ScanContext is the normalized include/exclude descriptor passed to the
// engine. Exclude entries narrow, never widen, the scan relative to Include.
// An empty Include means the whole document.
type ScanContext struct {
	Include []Selector `json:"include,omitempty"`
	Exclude []Selector `json:"exclude,omitempty"`
}

// FrameContext describes one child frame the engine still wants scanned,
// with a scan context already scoped to that frame. Produced by the engine,
// never derived locally.
type FrameContext struct {
	FrameSelector Selector    `json:"frameSelector"`
	FrameContext  ScanContext `json:"frameContext"`
}

// normalizeContext merges includes, excludes, and disabled-frame selectors
// into one ScanContext. Each disabled frame selector S becomes the exclude
// entry [S, "*"]: everything inside that frame. A nil return means no
// constraints were given and the engine should scan the whole document.
// Pure; never touches the driver.
func normalizeContext(includes, excludes []Selector, disabledFrames []string) *ScanContext {
	sc := &ScanContext{}
	sc.Exclude = append(sc.Exclude, excludes...)
	for _, sel := range disabledFrames {
		sc.Exclude = append(sc.Exclude, Selector{sel, "*"})
	}
	sc.Include = append(sc.Include, includes...)
	if len(sc.Include) == 0 && len(sc.Exclude) == 0 {
		return nil
	}
	return sc
}
