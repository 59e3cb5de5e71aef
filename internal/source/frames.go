// Package source provides synchronized colour and depth frame sets.
package source

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/banshee-data/depthview/internal/depth"
)

var (
	// ErrTimeout is returned by Next when no frame set arrived in time.
	ErrTimeout = errors.New("source: timed out waiting for frames")

	// ErrClosed is returned once a source has stopped delivering frames.
	ErrClosed = errors.New("source: closed")

	// ErrNotStarted is returned by Next before Start.
	ErrNotStarted = errors.New("source: not started")
)

// Pipeline selects the sensor's packet processing backend.
type Pipeline string

const (
	PipelineCPU Pipeline = "cpu"
	PipelineGL  Pipeline = "gl"
	PipelineCL  Pipeline = "cl"
)

// ParsePipeline validates a pipeline name. The empty string selects CPU.
func ParsePipeline(s string) (Pipeline, error) {
	switch p := Pipeline(strings.ToLower(s)); p {
	case "":
		return PipelineCPU, nil
	case PipelineCPU, PipelineGL, PipelineCL:
		return p, nil
	}
	return "", fmt.Errorf("unknown pipeline %q: want cpu, gl or cl", s)
}

// DeviceInfo identifies an opened sensor.
type DeviceInfo struct {
	Serial   string
	Firmware string
	Pipeline Pipeline
}

// ColorFrame is a 4-channel 8-bit image in B, G, R, A byte order. It
// implements draw.Image.
type ColorFrame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewColorFrame allocates a transparent black frame.
func NewColorFrame(width, height int) *ColorFrame {
	return &ColorFrame{Width: width, Height: height, Pix: make([]uint8, width*height*4)}
}

// ColorModel implements image.Image.
func (c *ColorFrame) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (c *ColorFrame) Bounds() image.Rectangle { return image.Rect(0, 0, c.Width, c.Height) }

// At implements image.Image.
func (c *ColorFrame) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return color.RGBA{}
	}
	o := (y*c.Width + x) * 4
	return color.RGBA{R: c.Pix[o+2], G: c.Pix[o+1], B: c.Pix[o], A: c.Pix[o+3]}
}

// Set implements draw.Image.
func (c *ColorFrame) Set(x, y int, col color.Color) {
	if x < 0 || y < 0 || x >= c.Width || y >= c.Height {
		return
	}
	rgba := color.RGBAModel.Convert(col).(color.RGBA)
	c.setBGRA(x, y, rgba)
}

func (c *ColorFrame) setBGRA(x, y int, col color.RGBA) {
	o := (y*c.Width + x) * 4
	c.Pix[o] = col.B
	c.Pix[o+1] = col.G
	c.Pix[o+2] = col.R
	c.Pix[o+3] = col.A
}

// FrameSet is one synchronized capture: a colour frame, a depth frame and,
// after registration, the colour image resampled to depth geometry.
type FrameSet struct {
	Seq        uint64
	Timestamp  time.Time
	Color      *ColorFrame
	Depth      *depth.Frame
	Registered *ColorFrame
}

// Register maps set's colour frame onto its depth geometry and stores the
// result in set.Registered. Pixels without a depth reading are left
// transparent black.
func Register(set *FrameSet) (*FrameSet, error) {
	if set == nil || set.Color == nil || set.Depth == nil {
		return nil, errors.New("register: incomplete frame set")
	}
	d := set.Depth
	if d.Width <= 0 || d.Height <= 0 {
		return nil, fmt.Errorf("register: %w", depth.ErrEmptyFrame)
	}

	reg := NewColorFrame(d.Width, d.Height)
	draw.NearestNeighbor.Scale(reg, reg.Bounds(), set.Color, set.Color.Bounds(), draw.Src, nil)

	for i, v := range d.Data[:d.Width*d.Height] {
		if v == 0 {
			o := i * 4
			reg.Pix[o], reg.Pix[o+1], reg.Pix[o+2], reg.Pix[o+3] = 0, 0, 0, 0
		}
	}
	set.Registered = reg
	return set, nil
}
