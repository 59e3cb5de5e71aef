package depth

import (
	"image"
	"image/color"
)

// Accent is the colour painted at the corner pixel of every reduced cell
// that passed the threshold window.
var Accent = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// RGBImage is a packed 3-channel 8-bit image, the format handed to the
// display's overlay surface. It implements image.Image so it can be
// composited or encoded directly.
type RGBImage struct {
	Width  int
	Height int
	Pix    []uint8 // R, G, B per pixel, row-major
}

// NewRGBImage allocates an image filled with white.
func NewRGBImage(width, height int) *RGBImage {
	pix := make([]uint8, width*height*3)
	for i := range pix {
		pix[i] = 255
	}
	return &RGBImage{Width: width, Height: height, Pix: pix}
}

// ColorModel implements image.Image.
func (m *RGBImage) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (m *RGBImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.Width, m.Height) }

// At implements image.Image.
func (m *RGBImage) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return color.RGBA{}
	}
	o := (y*m.Width + x) * 3
	return color.RGBA{R: m.Pix[o], G: m.Pix[o+1], B: m.Pix[o+2], A: 255}
}

// SetRGB paints one pixel.
func (m *RGBImage) SetRGB(x, y int, c color.RGBA) {
	o := (y*m.Width + x) * 3
	m.Pix[o] = c.R
	m.Pix[o+1] = c.G
	m.Pix[o+2] = c.B
}

// Rasterize renders a coarse visualisation of r at full source resolution.
//
// The image starts white. For every non-zero cell (i, j) only the pixel at
// (i*Factor, j*Factor) is painted Accent; the rest of the block is left
// untouched, so the result is a sparse dot grid rather than filled blocks.
// The output is for display only and is never fed back into tracking.
func Rasterize(r *Reduced) *RGBImage {
	img := NewRGBImage(r.SourceWidth, r.SourceHeight)
	for j := 0; j < r.Height; j++ {
		for i := 0; i < r.Width; i++ {
			if r.Data[j*r.Width+i] == 0 {
				continue
			}
			img.SetRGB(i*r.Factor, j*r.Factor, Accent)
		}
	}
	return img
}
