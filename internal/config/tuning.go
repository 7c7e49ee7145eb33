package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/stability.report/internal/stabilize"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for stabilization
// tuning parameters. The schema matches the /api/stabilize/params
// endpoint so the same JSON serves startup configuration and runtime
// inspection. Fields omitted from the JSON keep their defaults, so
// partial configs are safe.
type TuningConfig struct {
	// Engine params
	MinFrames         *int     `json:"min_frames,omitempty"`
	MaxGap            *int     `json:"max_gap,omitempty"`
	AppearConfidence  *float64 `json:"appear_confidence,omitempty"`
	PersistConfidence *float64 `json:"persist_confidence,omitempty"`
	IoUThreshold      *float64 `json:"iou_threshold,omitempty"`

	// Matcher selection: "iou" or "class"
	Matcher *string `json:"matcher,omitempty"`

	// History limits
	MaxConfidenceHistory *int `json:"max_confidence_history,omitempty"`

	// Runtime params
	StartEnabled          *bool   `json:"start_enabled,omitempty"`
	StatsSnapshotInterval *string `json:"stats_snapshot_interval,omitempty"` // duration string like "30s"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches the current directory and common parent
// directories. Panics if the file cannot be loaded, intended for tests
// and binaries that have already validated config availability.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid. The engine
// re-validates at construction; this catches errors at load time with
// file-level context.
func (c *TuningConfig) Validate() error {
	if c.MinFrames != nil && *c.MinFrames < 1 {
		return fmt.Errorf("min_frames must be >= 1, got %d", *c.MinFrames)
	}
	if c.MaxGap != nil && *c.MaxGap < 0 {
		return fmt.Errorf("max_gap must be non-negative, got %d", *c.MaxGap)
	}
	if c.AppearConfidence != nil {
		if *c.AppearConfidence < 0 || *c.AppearConfidence > 1 {
			return fmt.Errorf("appear_confidence must be between 0 and 1, got %f", *c.AppearConfidence)
		}
	}
	if c.PersistConfidence != nil {
		if *c.PersistConfidence < 0 || *c.PersistConfidence > 1 {
			return fmt.Errorf("persist_confidence must be between 0 and 1, got %f", *c.PersistConfidence)
		}
	}
	if c.AppearConfidence != nil && c.PersistConfidence != nil && *c.PersistConfidence > *c.AppearConfidence {
		return fmt.Errorf("persist_confidence (%f) must be <= appear_confidence (%f)",
			*c.PersistConfidence, *c.AppearConfidence)
	}
	if c.IoUThreshold != nil {
		if *c.IoUThreshold < 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IoUThreshold)
		}
	}
	if c.Matcher != nil {
		switch *c.Matcher {
		case "iou", "class":
		default:
			return fmt.Errorf("matcher must be 'iou' or 'class', got %q", *c.Matcher)
		}
	}
	if c.MaxConfidenceHistory != nil && *c.MaxConfidenceHistory < 1 {
		return fmt.Errorf("max_confidence_history must be >= 1, got %d", *c.MaxConfidenceHistory)
	}
	if c.StatsSnapshotInterval != nil && *c.StatsSnapshotInterval != "" {
		if _, err := time.ParseDuration(*c.StatsSnapshotInterval); err != nil {
			return fmt.Errorf("invalid stats_snapshot_interval '%s': %w", *c.StatsSnapshotInterval, err)
		}
	}
	return nil
}

// GetMinFrames returns the min_frames value or the default.
func (c *TuningConfig) GetMinFrames() int {
	if c.MinFrames == nil {
		return 3
	}
	return *c.MinFrames
}

// GetMaxGap returns the max_gap value or the default.
func (c *TuningConfig) GetMaxGap() int {
	if c.MaxGap == nil {
		return 2
	}
	return *c.MaxGap
}

// GetAppearConfidence returns the appear_confidence value or the default.
func (c *TuningConfig) GetAppearConfidence() float64 {
	if c.AppearConfidence == nil {
		return 0.5
	}
	return *c.AppearConfidence
}

// GetPersistConfidence returns the persist_confidence value or the default.
func (c *TuningConfig) GetPersistConfidence() float64 {
	if c.PersistConfidence == nil {
		return 0.3
	}
	return *c.PersistConfidence
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.3
	}
	return *c.IoUThreshold
}

// GetMatcher returns the matcher value or the default.
func (c *TuningConfig) GetMatcher() string {
	if c.Matcher == nil {
		return "iou"
	}
	return *c.Matcher
}

// GetMaxConfidenceHistory returns the max_confidence_history value or the default.
func (c *TuningConfig) GetMaxConfidenceHistory() int {
	if c.MaxConfidenceHistory == nil {
		return 10
	}
	return *c.MaxConfidenceHistory
}

// GetStartEnabled returns the start_enabled value or the default.
func (c *TuningConfig) GetStartEnabled() bool {
	if c.StartEnabled == nil {
		return true
	}
	return *c.StartEnabled
}

// GetStatsSnapshotInterval parses and returns the stats snapshot interval.
func (c *TuningConfig) GetStatsSnapshotInterval() time.Duration {
	if c.StatsSnapshotInterval == nil || *c.StatsSnapshotInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.StatsSnapshotInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// StabilizationConfig builds the engine Config from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
func (c *TuningConfig) StabilizationConfig() stabilize.Config {
	return stabilize.Config{
		MinFrames:            c.GetMinFrames(),
		MaxGap:               c.GetMaxGap(),
		AppearConfidence:     c.GetAppearConfidence(),
		PersistConfidence:    c.GetPersistConfidence(),
		IoUThreshold:         c.GetIoUThreshold(),
		MaxConfidenceHistory: c.GetMaxConfidenceHistory(),
	}
}

// BuildMatcher constructs the configured matcher variant.
func (c *TuningConfig) BuildMatcher() stabilize.Matcher {
	switch c.GetMatcher() {
	case "class":
		return stabilize.ClassOnlyMatcher{}
	default:
		return stabilize.NewIoUMatcher(c.GetIoUThreshold())
	}
}
