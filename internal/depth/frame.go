package depth

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyFrame is returned when a frame has a zero dimension or carries
	// fewer samples than its geometry requires.
	ErrEmptyFrame = errors.New("depth: empty frame")

	// ErrBadFactor is returned for a decimation factor below 1.
	ErrBadFactor = errors.New("depth: decimation factor must be >= 1")

	// ErrBadWindow is returned when a threshold window does not begin
	// strictly before it ends.
	ErrBadWindow = errors.New("depth: threshold window must begin before it ends")
)

// Frame is one sensor-provided grid of depth samples for a single tick.
// Samples are row-major, one uint16 per pixel, in millimetres.
type Frame struct {
	Width  int
	Height int
	Data   []uint16
}

// NewFrame allocates a zeroed frame of the given geometry.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Data:   make([]uint16, width*height),
	}
}

// At returns the sample at column x, row y.
func (f *Frame) At(x, y int) uint16 {
	return f.Data[y*f.Width+x]
}

// Set stores a sample at column x, row y.
func (f *Frame) Set(x, y int, v uint16) {
	f.Data[y*f.Width+x] = v
}

func (f *Frame) validate() error {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return ErrEmptyFrame
	}
	if len(f.Data) < f.Width*f.Height {
		return fmt.Errorf("%w: %d samples for %dx%d", ErrEmptyFrame, len(f.Data), f.Width, f.Height)
	}
	return nil
}

// FromFloat32 converts a float32 millimetre depth image, as delivered by the
// sensor, into a Frame. Values are truncated toward zero; negatives and NaNs
// become 0 and values beyond the uint16 range saturate at 65535.
func FromFloat32(width, height int, samples []float32) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyFrame
	}
	n := width * height
	if len(samples) < n {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrEmptyFrame, len(samples), width, height)
	}

	f := NewFrame(width, height)
	for i := 0; i < n; i++ {
		v := samples[i]
		switch {
		case v != v || v <= 0: // NaN or non-positive
			f.Data[i] = 0
		case v >= math.MaxUint16:
			f.Data[i] = math.MaxUint16
		default:
			f.Data[i] = uint16(v)
		}
	}
	return f, nil
}

// Window is the inclusive depth range passed through to tracking.
type Window struct {
	Begin uint16
	End   uint16
}

// Contains reports whether v lies inside the window.
func (w Window) Contains(v uint16) bool {
	return v >= w.Begin && v <= w.End
}
