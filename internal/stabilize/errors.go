package stabilize

import "fmt"

// InvalidConfigError reports a configuration that violates the engine's
// invariants. It is fatal: construction fails and no engine is returned.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid stabilization config: " + e.Reason
}

// InvalidDetectionError reports a single malformed raw detection. It is
// recoverable: Process skips the detection, counts it, and completes the
// rest of the frame.
type InvalidDetectionError struct {
	Index  int
	Reason string
}

func (e *InvalidDetectionError) Error() string {
	return fmt.Sprintf("invalid detection at index %d: %s", e.Index, e.Reason)
}
