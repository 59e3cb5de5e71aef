// Package control owns the user-adjustable viewer parameters and the
// commands that change them.
package control

import (
	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/skeleton"
)

const (
	// MinThresholdSpan is the smallest allowed gap between ThresholdBegin
	// and ThresholdEnd, in millimetres.
	MinThresholdSpan = 300

	// MaxThresholdEnd is the far limit of the threshold window.
	MaxThresholdEnd = 4000

	// OverlayShown and OverlayHidden are the skeleton surface opacities for
	// the two views.
	OverlayShown  uint8 = 122
	OverlayHidden uint8 = 0
)

// Params is the live parameter state. It has a single writer, the
// display goroutine; each tracking request copies what it needs at
// submission.
type Params struct {
	ThresholdBegin   uint16
	ThresholdEnd     uint16
	DecimationFactor int
	SmoothingEnabled bool
	SmoothingFactor  float64
	ShowSkeleton     bool
}

// DefaultParams returns the startup parameters. The smoothing factor is
// taken from the tracker's own defaults.
func DefaultParams(tracker skeleton.Options) Params {
	return Params{
		ThresholdBegin:   500,
		ThresholdEnd:     3000,
		DecimationFactor: 8,
		SmoothingEnabled: true,
		SmoothingFactor:  tracker.SmoothingFactor,
		ShowSkeleton:     true,
	}
}

// Window returns the threshold window for depth reduction.
func (p Params) Window() depth.Window {
	return depth.Window{Begin: p.ThresholdBegin, End: p.ThresholdEnd}
}

// TrackerOptions returns the tracker configuration implied by p.
func (p Params) TrackerOptions() skeleton.Options {
	return skeleton.Options{
		Decimation:       p.DecimationFactor,
		SmoothingEnabled: p.SmoothingEnabled,
		SmoothingFactor:  p.SmoothingFactor,
	}
}

// OverlayOpacity returns the skeleton surface opacity for the current view.
func (p Params) OverlayOpacity() uint8 {
	if p.ShowSkeleton {
		return OverlayShown
	}
	return OverlayHidden
}
