// Package pipeline drives the viewer: it pulls frame sets from a source,
// feeds the display and the tracking manager, and applies user commands
// between ticks.
package pipeline

import (
	"context"
	"sync/atomic"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/depthview/internal/control"
	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/monitoring"
	"github.com/banshee-data/depthview/internal/render"
	"github.com/banshee-data/depthview/internal/skeleton"
	"github.com/banshee-data/depthview/internal/source"
	"github.com/banshee-data/depthview/internal/timeutil"
	"github.com/banshee-data/depthview/internal/tracking"
)

// FrameSource delivers synchronized colour and depth frame sets.
type FrameSource interface {
	Open(ctx context.Context) error
	Start() error
	// Next blocks until a frame set is available or ctx is done.
	Next(ctx context.Context) (*source.FrameSet, error)
	Register(set *source.FrameSet) (*source.FrameSet, error)
	Stop() error
	Close() error
}

// Display is the viewer's output.
type Display interface {
	PresentVideo(img *source.ColorFrame) error
	PresentOverlay(img *depth.RGBImage) error
	SetOverlayOpacity(alpha uint8)
	SetInfo(text string)
	// Redraw clears the vector surface, lets paint draw on it and commits
	// the result when paint returns true.
	Redraw(paint func(c vg.Canvas, width, height int) bool) error
	// EndFrame is called once at the end of every tick.
	EndFrame() error
}

// Runtime bundles the viewer's components. Passing a Runtime through
// constructors keeps the wiring explicit; nothing is held in globals.
type Runtime struct {
	Params     *control.Params
	Source     FrameSource
	Display    Display
	Tracker    skeleton.Tracker
	Manager    *tracking.Manager
	Slot       *tracking.JointSlot
	Renderer   *render.Skeleton
	Controller *control.Controller
	Stats      *monitoring.Stats
	Clock      timeutil.Clock

	// invalidated is set by tracking completions and cleared when the
	// vector surface is redrawn.
	invalidated atomic.Bool
	// blank is set by a failed completion: the next redraw paints an empty
	// surface instead of the previous skeleton.
	blank atomic.Bool
}

// NewRuntime wires a Runtime. ctx bounds every tracking request and should
// live as long as the pipeline. A nil clock uses the real clock.
func NewRuntime(ctx context.Context, params control.Params, src FrameSource, disp Display, tracker skeleton.Tracker, clock timeutil.Clock) *Runtime {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rt := &Runtime{
		Params:  &params,
		Source:  src,
		Display: disp,
		Tracker: tracker,
		Slot:    &tracking.JointSlot{},
		Stats:   monitoring.NewStats(clock),
		Clock:   clock,
	}
	rt.Manager = tracking.NewManager(ctx, tracking.Config{
		Tracker:  tracker,
		Slot:     rt.Slot,
		Clock:    clock,
		OnResult: rt.Invalidate,
		OnComplete: func(c tracking.Completion) {
			rt.Stats.ObserveCompletion(c.Latency, c.Err)
			if c.Err != nil {
				rt.Slot.Take()
				rt.blank.Store(true)
				rt.Invalidate()
			}
		},
	})
	rt.Renderer = render.NewSkeleton(rt.Slot)
	rt.Controller = control.NewController(rt.Params, tracker, disp)
	return rt
}

// Invalidate marks the vector surface as needing a redraw.
func (rt *Runtime) Invalidate() {
	rt.invalidated.Store(true)
}

// drawSkeleton paints the pending joint list or, after a failed request,
// an empty surface. It returns false when there is nothing new to show.
func (rt *Runtime) drawSkeleton(c vg.Canvas, width, height int) bool {
	if rt.Renderer.Draw(c, width, height) {
		rt.blank.Store(false)
		return true
	}
	if rt.blank.CompareAndSwap(true, false) {
		rt.Renderer.Clear(c, width, height)
		return true
	}
	return false
}
