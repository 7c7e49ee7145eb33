package stabilize

import "fmt"

// Config holds the engine's tuning parameters. It is immutable after
// construction; there is no hot reload.
type Config struct {
	// MinFrames is the number of consecutive accepted matches a track
	// needs before it is confirmed and starts appearing in output.
	MinFrames int

	// MaxGap is the number of consecutive missed frames a track survives.
	// A track is removed when GapFrames exceeds (not reaches) MaxGap.
	MaxGap int

	// AppearConfidence gates track creation and provisional matches.
	AppearConfidence float64

	// PersistConfidence gates matches against confirmed tracks. Must not
	// exceed AppearConfidence (hysteresis: harder to appear than persist).
	PersistConfidence float64

	// IoUThreshold is the strict lower bound for a spatial match.
	IoUThreshold float64

	// MaxConfidenceHistory bounds the per-track confidence history kept
	// for statistics. Zero means DefaultMaxConfidenceHistory.
	MaxConfidenceHistory int
}

// DefaultMaxConfidenceHistory is the confidence history cap applied when
// Config.MaxConfidenceHistory is zero.
const DefaultMaxConfidenceHistory = 10

// Validate checks the configuration invariants. The configuration loader
// validates upstream as well; this is the engine's own fail-fast check.
func (c Config) Validate() error {
	if c.MinFrames < 1 {
		return &InvalidConfigError{Reason: fmt.Sprintf("min_frames must be >= 1, got %d", c.MinFrames)}
	}
	if c.MaxGap < 0 {
		return &InvalidConfigError{Reason: fmt.Sprintf("max_gap must be >= 0, got %d", c.MaxGap)}
	}
	if c.AppearConfidence < 0 || c.AppearConfidence > 1 {
		return &InvalidConfigError{Reason: fmt.Sprintf("appear_confidence must be in [0,1], got %g", c.AppearConfidence)}
	}
	if c.PersistConfidence < 0 || c.PersistConfidence > 1 {
		return &InvalidConfigError{Reason: fmt.Sprintf("persist_confidence must be in [0,1], got %g", c.PersistConfidence)}
	}
	if c.PersistConfidence > c.AppearConfidence {
		return &InvalidConfigError{Reason: fmt.Sprintf(
			"persist_confidence (%g) must be <= appear_confidence (%g)",
			c.PersistConfidence, c.AppearConfidence)}
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return &InvalidConfigError{Reason: fmt.Sprintf("iou_threshold must be in [0,1], got %g", c.IoUThreshold)}
	}
	if c.MaxConfidenceHistory < 0 {
		return &InvalidConfigError{Reason: fmt.Sprintf("max_confidence_history must be >= 0, got %d", c.MaxConfidenceHistory)}
	}
	return nil
}

// historyCap returns the effective confidence history bound.
func (c Config) historyCap() int {
	if c.MaxConfidenceHistory == 0 {
		return DefaultMaxConfidenceHistory
	}
	return c.MaxConfidenceHistory
}
