package skeleton

import (
	"context"
	"errors"

	"github.com/banshee-data/depthview/internal/depth"
)

var (
	// ErrNoUser is reported when a buffer holds too few in-window samples
	// to contain a person.
	ErrNoUser = errors.New("skeleton: no user found in buffer")

	// ErrNoBuffer is reported when TrackJoints is given a nil buffer.
	ErrNoBuffer = errors.New("skeleton: nil buffer")
)

// Options is the tracker's live configuration.
type Options struct {
	// Decimation is the factor the buffers were reduced by. Trackers use
	// it to map reduced cells back to screen pixels when a buffer does
	// not carry its own factor.
	Decimation int

	// SmoothingEnabled turns temporal joint smoothing on.
	SmoothingEnabled bool

	// SmoothingFactor in [0,1]: 0 follows new detections exactly, values
	// near 1 lean heavily on the previous result.
	SmoothingFactor float64
}

// DefaultOptions returns the reference tracker's defaults.
func DefaultOptions() Options {
	return Options{
		Decimation:       16,
		SmoothingEnabled: true,
		SmoothingFactor:  0.5,
	}
}

// Result is the completion of one tracking request: either a joint list or
// an error, never both.
type Result struct {
	Joints *JointList
	Err    error
}

// Tracker detects joints asynchronously.
//
// TrackJoints must return immediately. The returned channel delivers exactly
// one Result, from a goroutine other than the caller's, once the work is
// done. Implementations must not retain buf after delivering the Result;
// the caller releases it at that point.
type Tracker interface {
	Configure(opts Options)
	Options() Options
	TrackJoints(ctx context.Context, buf *depth.Reduced) <-chan Result
}
