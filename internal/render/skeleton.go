// Package render draws tracked skeletons onto a vector canvas.
package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/depthview/internal/skeleton"
)

// ListSource hands out completed joint lists, each exactly once.
type ListSource interface {
	Take() (*skeleton.JointList, bool)
}

// Style controls the look of a drawn skeleton. Disc radii are Scale/z
// screen units, so nearer users get bigger discs.
type Style struct {
	Background color.Color

	Bone      color.Color
	BoneWidth vg.Length

	Head      color.Color
	HeadScale float64

	Left          color.Color
	Right         color.Color
	HandScale     float64
	ShoulderScale float64
}

// DefaultStyle returns the stock skeleton look.
func DefaultStyle() Style {
	return Style{
		Background:    color.White,
		Bone:          withAlpha(mustColour("#afafaf"), 200),
		BoneWidth:     10,
		Head:          withAlpha(mustColour("#FFF800"), 200),
		HeadScale:     50000,
		Left:          withAlpha(mustColour("#C2FF00"), 200),
		Right:         withAlpha(mustColour("#00FAFF"), 200),
		HandScale:     30000,
		ShoulderScale: 20000,
	}
}

// Skeleton renders the newest joint list from a ListSource.
type Skeleton struct {
	src   ListSource
	style Style
}

// NewSkeleton creates a renderer reading from src with DefaultStyle.
func NewSkeleton(src ListSource) *Skeleton {
	return &Skeleton{src: src, style: DefaultStyle()}
}

// SetStyle replaces the renderer's style.
func (s *Skeleton) SetStyle(st Style) {
	s.style = st
}

// Draw consumes the pending joint list, if any, and paints it onto c, a
// surface of width×height screen units. It returns false and leaves c
// untouched when no list was waiting.
func (s *Skeleton) Draw(c vg.Canvas, width, height int) bool {
	list, ok := s.src.Take()
	if !ok {
		return false
	}
	s.Paint(c, width, height, list)
	return true
}

// Clear paints c with the background colour only.
func (s *Skeleton) Clear(c vg.Canvas, width, height int) {
	var bg vg.Path
	bg.Move(vg.Point{})
	bg.Line(vg.Point{X: vg.Length(width)})
	bg.Line(vg.Point{X: vg.Length(width), Y: vg.Length(height)})
	bg.Line(vg.Point{Y: vg.Length(height)})
	bg.Close()
	c.SetColor(s.style.Background)
	c.Fill(bg)
}

// Paint clears c and draws list on it. Joint coordinates use a top-left
// origin; vg uses bottom-left, so y is flipped against height.
func (s *Skeleton) Paint(c vg.Canvas, width, height int, list *skeleton.JointList) {
	st := s.style
	s.Clear(c, width, height)

	pt := func(j *skeleton.Joint) vg.Point {
		return vg.Point{X: vg.Length(j.ScreenX), Y: vg.Length(height - j.ScreenY)}
	}

	c.SetLineWidth(st.BoneWidth)
	c.SetLineDash(nil, 0)
	c.SetColor(st.Bone)
	bone := func(a, b skeleton.JointID) {
		ja, jb := list.Get(a), list.Get(b)
		if ja == nil || jb == nil {
			return
		}
		var p vg.Path
		p.Move(pt(ja))
		p.Line(pt(jb))
		c.Stroke(p)
	}
	bone(skeleton.LeftShoulder, skeleton.RightShoulder)
	bone(skeleton.LeftShoulder, skeleton.LeftHand)
	bone(skeleton.RightShoulder, skeleton.RightHand)

	disc := func(id skeleton.JointID, scale float64, col color.Color) {
		j := list.Get(id)
		if j == nil || j.Z <= 0 {
			return
		}
		r := vg.Length(scale / float64(j.Z))
		center := pt(j)
		var p vg.Path
		p.Move(vg.Point{X: center.X + r, Y: center.Y})
		p.Arc(center, r, 0, 2*math.Pi)
		p.Close()
		c.SetColor(col)
		c.Fill(p)
	}
	disc(skeleton.Head, st.HeadScale, st.Head)
	disc(skeleton.LeftHand, st.HandScale, st.Left)
	disc(skeleton.LeftShoulder, st.ShoulderScale, st.Left)
	disc(skeleton.RightHand, st.HandScale, st.Right)
	disc(skeleton.RightShoulder, st.ShoulderScale, st.Right)
}

// Colour parses a "#RRGGBB" string into an opaque colour.
func Colour(hex string) (color.NRGBA, error) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: want #RRGGBB", hex)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", hex, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func mustColour(hex string) color.NRGBA {
	c, err := Colour(hex)
	if err != nil {
		panic(err)
	}
	return c
}

func withAlpha(c color.NRGBA, a uint8) color.NRGBA {
	c.A = a
	return c
}
