package control

import (
	"fmt"
	"strings"

	"github.com/banshee-data/depthview/internal/skeleton"
)

// Instructions describes the key bindings.
const Instructions = `Instructions:
	Change between skeleton
	  tracking and threshold view:	Space bar
	Set tilt angle:			Up/Down Arrows
	Increase threshold:		+/-
	Enable/Disable smoothing:	s
	Set smoothing level:		Left/Right Arrows
`

// View is the part of the display the controller reports to.
type View interface {
	SetOverlayOpacity(alpha uint8)
	SetInfo(text string)
}

// Configurer accepts tracker configuration. skeleton.Tracker satisfies it.
type Configurer interface {
	Configure(opts skeleton.Options)
}

// Controller applies user commands to a Params. It is not safe for
// concurrent use; commands must run on the goroutine that owns the params.
type Controller struct {
	params  *Params
	tracker Configurer
	view    View
}

// NewController creates a Controller mutating params. tracker and view may
// be nil.
func NewController(params *Params, tracker Configurer, view View) *Controller {
	return &Controller{params: params, tracker: tracker, view: view}
}

// Params returns a copy of the current parameters.
func (c *Controller) Params() Params {
	return *c.params
}

// Sync pushes the whole parameter state to the tracker and the view.
func (c *Controller) Sync() {
	c.configure()
	c.refresh()
}

// ToggleSkeletonView switches between the skeleton and point cloud views.
func (c *Controller) ToggleSkeletonView() {
	c.params.ShowSkeleton = !c.params.ShowSkeleton
	if c.view != nil {
		c.view.SetOverlayOpacity(c.params.OverlayOpacity())
	}
	diagf("show skeleton: %v", c.params.ShowSkeleton)
}

// AdjustThreshold moves the far end of the threshold window by delta
// millimetres, clamped to [ThresholdBegin+MinThresholdSpan, MaxThresholdEnd].
func (c *Controller) AdjustThreshold(delta int) {
	lo := int(c.params.ThresholdBegin) + MinThresholdSpan
	v := int(c.params.ThresholdEnd) + delta
	if v > MaxThresholdEnd {
		v = MaxThresholdEnd
	}
	if v < lo {
		v = lo
	}
	c.params.ThresholdEnd = uint16(v)
	diagf("threshold end: %d", v)
}

// ToggleSmoothing turns tracker smoothing on or off.
func (c *Controller) ToggleSmoothing() {
	c.params.SmoothingEnabled = !c.params.SmoothingEnabled
	c.configure()
	diagf("smoothing enabled: %v", c.params.SmoothingEnabled)
}

// AdjustSmoothingFactor moves the smoothing factor by delta, clamped to
// [0, 1].
func (c *Controller) AdjustSmoothingFactor(delta float64) {
	f := c.params.SmoothingFactor + delta
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	c.params.SmoothingFactor = f
	c.configure()
	diagf("smoothing factor: %.2f", f)
}

// AdjustTilt would move the sensor's tilt motor. The supported sensor has
// none, so this only logs.
func (c *Controller) AdjustTilt(delta int) {
	diagf("tilt %+d ignored: sensor has no tilt motor", delta)
}

// HandleKey runs the command bound to k and refreshes the info text. It
// reports whether k is bound.
func (c *Controller) HandleKey(k Key) bool {
	switch k {
	case KeySpace:
		c.ToggleSkeletonView()
	case KeyPlus:
		c.AdjustThreshold(10)
	case KeyMinus:
		c.AdjustThreshold(-10)
	case KeyUp:
		c.AdjustTilt(5)
	case KeyDown:
		c.AdjustTilt(-5)
	case KeySmoothing:
		c.ToggleSmoothing()
	case KeyRight:
		c.AdjustSmoothingFactor(0.05)
	case KeyLeft:
		c.AdjustSmoothingFactor(-0.05)
	default:
		return false
	}
	c.refresh()
	return true
}

// Status renders the info line for the current parameters.
func (c *Controller) Status() string {
	p := c.params
	view := "Point Cloud"
	if p.ShowSkeleton {
		view = "Skeleton"
	}
	smoothing := "No"
	if p.SmoothingEnabled {
		smoothing = "Yes"
	}
	return fmt.Sprintf("Current View: %s, Threshold: %d, Smoothing Enabled: %s, Smoothing Level: %.2f",
		view, p.ThresholdEnd, smoothing, p.SmoothingFactor)
}

func (c *Controller) configure() {
	if c.tracker != nil {
		c.tracker.Configure(c.params.TrackerOptions())
	}
}

func (c *Controller) refresh() {
	if c.view == nil {
		return
	}
	c.view.SetOverlayOpacity(c.params.OverlayOpacity())
	c.view.SetInfo(c.Status())
}

// Key is a bound input key.
type Key string

// Bound keys.
const (
	KeySpace     Key = "space"
	KeyPlus      Key = "+"
	KeyMinus     Key = "-"
	KeyUp        Key = "up"
	KeyDown      Key = "down"
	KeySmoothing Key = "s"
	KeyRight     Key = "right"
	KeyLeft      Key = "left"
)

// ParseKey maps a typed token to a Key. Besides the key names it accepts
// " " for space and "=" for plus, and is case-insensitive.
func ParseKey(s string) (Key, bool) {
	if s == " " {
		return KeySpace, true
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "space", "+", "-", "up", "down", "s", "right", "left":
		return Key(s), true
	case "=":
		return KeyPlus, true
	}
	return "", false
}
