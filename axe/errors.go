package axe

import "fmt"

// troubleshootingURL is appended to merge failures; the finish run is the
// step users most often hit driver-specific problems with.
const troubleshootingURL = "https://github.com/hazyhaar/axedrive#troubleshooting"

// WindowError is a window-lifecycle failure during the finish step: the
// isolated merge window could not be created or switched into. Fatal for
// the analyze call that hit it.
type WindowError struct {
	Hint string
	Err  error
}

func (e *WindowError) Error() string {
	if e.Err == nil {
		return "axe: " + e.Hint
	}
	return fmt.Sprintf("axe: %s: %v", e.Hint, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// MergeError wraps a failure of the engine's finish/merge call itself. The
// temporary window is already cleaned up by the time this propagates.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("axe: finish run failed: %v\nsee %s", e.Err, troubleshootingURL)
}

func (e *MergeError) Unwrap() error { return e.Err }
