// Package config loads the viewer's startup configuration.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/depthview/internal/control"
	"github.com/banshee-data/depthview/internal/fsutil"
	"github.com/banshee-data/depthview/internal/skeleton"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/depthview.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// ViewerConfig is the startup configuration. Every field is optional; the
// Get* methods supply defaults for fields the file leaves out.
type ViewerConfig struct {
	// Parameter state
	ThresholdBegin   *int     `json:"threshold_begin,omitempty"`
	ThresholdEnd     *int     `json:"threshold_end,omitempty"`
	DecimationFactor *int     `json:"decimation_factor,omitempty"`
	EnableSmoothing  *bool    `json:"enable_smoothing,omitempty"`
	SmoothingFactor  *float64 `json:"smoothing_factor,omitempty"` // overrides the tracker default
	ShowSkeleton     *bool    `json:"show_skeleton,omitempty"`

	// Frame pump
	FrameRate     *float64 `json:"frame_rate,omitempty"`     // ticks per second
	FrameTimeout  *string  `json:"frame_timeout,omitempty"`  // duration string like "1s"
	StatsInterval *string  `json:"stats_interval,omitempty"` // duration string like "5s"

	// Depth geometry
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	// Snapshots
	SnapshotEvery *int    `json:"snapshot_every,omitempty"` // frames; 0 disables
	SnapshotDir   *string `json:"snapshot_dir,omitempty"`
}

// EmptyViewerConfig returns a ViewerConfig with all fields unset.
func EmptyViewerConfig() *ViewerConfig {
	return &ViewerConfig{}
}

// Load reads a ViewerConfig from a JSON file on disk.
func Load(path string) (*ViewerConfig, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS reads a ViewerConfig from fsys. The file must have a .json
// extension and be no larger than 1MB. The result is validated.
func LoadFS(fsys fsutil.FileSystem, path string) (*ViewerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyViewerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. It panics on
// failure and is intended for test setup.
func MustLoadDefaultConfig() *ViewerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *ViewerConfig) Validate() error {
	tb, te := c.GetThresholdBegin(), c.GetThresholdEnd()
	if tb < 0 {
		return fmt.Errorf("threshold_begin must be non-negative, got %d", tb)
	}
	if te > control.MaxThresholdEnd {
		return fmt.Errorf("threshold_end must be at most %d, got %d", control.MaxThresholdEnd, te)
	}
	if te < tb+control.MinThresholdSpan {
		return fmt.Errorf("threshold_end (%d) must be at least threshold_begin (%d) + %d", te, tb, control.MinThresholdSpan)
	}

	if c.DecimationFactor != nil && *c.DecimationFactor < 1 {
		return fmt.Errorf("decimation_factor must be >= 1, got %d", *c.DecimationFactor)
	}
	if c.SmoothingFactor != nil {
		if *c.SmoothingFactor < 0 || *c.SmoothingFactor > 1 {
			return fmt.Errorf("smoothing_factor must be between 0 and 1, got %f", *c.SmoothingFactor)
		}
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}

	if c.FrameTimeout != nil && *c.FrameTimeout != "" {
		if _, err := time.ParseDuration(*c.FrameTimeout); err != nil {
			return fmt.Errorf("invalid frame_timeout '%s': %w", *c.FrameTimeout, err)
		}
	}
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	if c.Width != nil && *c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", *c.Width)
	}
	if c.Height != nil && *c.Height <= 0 {
		return fmt.Errorf("height must be positive, got %d", *c.Height)
	}
	if c.SnapshotEvery != nil && *c.SnapshotEvery < 0 {
		return fmt.Errorf("snapshot_every must be non-negative, got %d", *c.SnapshotEvery)
	}
	return nil
}

// GetThresholdBegin returns threshold_begin or the default.
func (c *ViewerConfig) GetThresholdBegin() int {
	if c.ThresholdBegin == nil {
		return 500
	}
	return *c.ThresholdBegin
}

// GetThresholdEnd returns threshold_end or the default.
func (c *ViewerConfig) GetThresholdEnd() int {
	if c.ThresholdEnd == nil {
		return 3000
	}
	return *c.ThresholdEnd
}

// GetDecimationFactor returns decimation_factor or the default.
func (c *ViewerConfig) GetDecimationFactor() int {
	if c.DecimationFactor == nil {
		return 8
	}
	return *c.DecimationFactor
}

// GetEnableSmoothing returns enable_smoothing or the default.
func (c *ViewerConfig) GetEnableSmoothing() bool {
	if c.EnableSmoothing == nil {
		return true
	}
	return *c.EnableSmoothing
}

// GetSmoothingFactor returns smoothing_factor, falling back to the
// tracker's own default.
func (c *ViewerConfig) GetSmoothingFactor(tracker skeleton.Options) float64 {
	if c.SmoothingFactor == nil {
		return tracker.SmoothingFactor
	}
	return *c.SmoothingFactor
}

// GetShowSkeleton returns show_skeleton or the default.
func (c *ViewerConfig) GetShowSkeleton() bool {
	if c.ShowSkeleton == nil {
		return true
	}
	return *c.ShowSkeleton
}

// GetFrameRate returns frame_rate or the default.
func (c *ViewerConfig) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return 30
	}
	return *c.FrameRate
}

// GetFrameTimeout parses frame_timeout as a time.Duration.
func (c *ViewerConfig) GetFrameTimeout() time.Duration {
	return parseDuration(c.FrameTimeout, time.Second)
}

// GetStatsInterval parses stats_interval as a time.Duration.
func (c *ViewerConfig) GetStatsInterval() time.Duration {
	return parseDuration(c.StatsInterval, 5*time.Second)
}

// GetWidth returns the depth frame width or the default.
func (c *ViewerConfig) GetWidth() int {
	if c.Width == nil {
		return 512
	}
	return *c.Width
}

// GetHeight returns the depth frame height or the default.
func (c *ViewerConfig) GetHeight() int {
	if c.Height == nil {
		return 424
	}
	return *c.Height
}

// GetSnapshotEvery returns snapshot_every or the default (off).
func (c *ViewerConfig) GetSnapshotEvery() int {
	if c.SnapshotEvery == nil {
		return 0
	}
	return *c.SnapshotEvery
}

// GetSnapshotDir returns snapshot_dir or the default.
func (c *ViewerConfig) GetSnapshotDir() string {
	if c.SnapshotDir == nil || *c.SnapshotDir == "" {
		return "snapshots"
	}
	return *c.SnapshotDir
}

// Params builds the startup parameter state.
func (c *ViewerConfig) Params(tracker skeleton.Options) control.Params {
	return control.Params{
		ThresholdBegin:   uint16(c.GetThresholdBegin()),
		ThresholdEnd:     uint16(c.GetThresholdEnd()),
		DecimationFactor: c.GetDecimationFactor(),
		SmoothingEnabled: c.GetEnableSmoothing(),
		SmoothingFactor:  c.GetSmoothingFactor(tracker),
		ShowSkeleton:     c.GetShowSkeleton(),
	}
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
