// Package display provides the viewer's output surfaces.
//
// Headless keeps the three surfaces of the interactive viewer in memory:
// the depth overlay with the skeleton layer blended over it on the left,
// and the colour video on the right. It writes the composite to PNG every
// N frames instead of putting it on screen.
package display

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"

	"golang.org/x/image/draw"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/fsutil"
	"github.com/banshee-data/depthview/internal/source"
)

// Config configures a Headless display.
type Config struct {
	// Width and Height are the size of each surface, normally the depth
	// geometry.
	Width  int
	Height int

	// FS receives snapshots. Defaults to fsutil.OSFileSystem.
	FS fsutil.FileSystem

	// Dir is the snapshot directory.
	Dir string

	// SnapshotEvery writes a composite every that many frames. Zero
	// disables snapshots.
	SnapshotEvery int
}

// Headless is an off-screen display. Surfaces are written by the display
// goroutine; the accessors may be called from any goroutine.
type Headless struct {
	cfg Config

	mu        sync.Mutex
	video     *image.RGBA
	overlay   image.Image
	skeleton  image.Image
	opacity   uint8
	info      string
	frames    uint64
	snapshots []string
}

// NewHeadless creates a Headless display.
func NewHeadless(cfg Config) (*Headless, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("display: invalid surface size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.SnapshotEvery < 0 {
		return nil, fmt.Errorf("display: negative snapshot interval %d", cfg.SnapshotEvery)
	}
	if cfg.FS == nil {
		cfg.FS = fsutil.OSFileSystem{}
	}
	return &Headless{cfg: cfg}, nil
}

// PresentVideo scales img onto the video surface.
func (h *Headless) PresentVideo(img *source.ColorFrame) error {
	if img == nil {
		return fmt.Errorf("present video: nil frame")
	}
	dst := image.NewRGBA(image.Rect(0, 0, h.cfg.Width, h.cfg.Height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	h.mu.Lock()
	h.video = dst
	h.mu.Unlock()
	return nil
}

// PresentOverlay replaces the depth overlay surface.
func (h *Headless) PresentOverlay(img *depth.RGBImage) error {
	if img == nil {
		return fmt.Errorf("present overlay: nil image")
	}
	h.mu.Lock()
	h.overlay = img
	h.mu.Unlock()
	return nil
}

// SetOverlayOpacity sets how strongly the skeleton layer covers the
// depth overlay.
func (h *Headless) SetOverlayOpacity(alpha uint8) {
	h.mu.Lock()
	h.opacity = alpha
	h.mu.Unlock()
}

// SetInfo sets the status line.
func (h *Headless) SetInfo(text string) {
	h.mu.Lock()
	changed := h.info != text
	h.info = text
	h.mu.Unlock()
	if changed {
		diagf("%s", text)
	}
}

// Redraw rasterises a fresh vector surface with paint and, when paint
// reports it drew something, replaces the skeleton layer with it.
func (h *Headless) Redraw(paint func(c vg.Canvas, width, height int) bool) error {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(h.cfg.Width), vg.Length(h.cfg.Height)),
		vgimg.UseDPI(72),
	)
	if !paint(c, h.cfg.Width, h.cfg.Height) {
		return nil
	}
	img := c.Image()

	h.mu.Lock()
	h.skeleton = img
	h.mu.Unlock()
	tracef("skeleton layer redrawn")
	return nil
}

// EndFrame marks the end of one tick and writes a snapshot when due.
func (h *Headless) EndFrame() error {
	h.mu.Lock()
	h.frames++
	n := h.frames
	h.mu.Unlock()

	if h.cfg.SnapshotEvery == 0 || n%uint64(h.cfg.SnapshotEvery) != 0 {
		return nil
	}
	name := filepath.Join(h.cfg.Dir, fmt.Sprintf("frame-%06d.png", n))
	if err := h.Snapshot(name); err != nil {
		opsf("snapshot %s failed: %v", name, err)
		return err
	}
	return nil
}

// Snapshot writes the current composite to name as PNG.
func (h *Headless) Snapshot(name string) error {
	img := h.Composite()

	w, err := fsutil.CreateAll(h.cfg.FS, name)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(w, img); err != nil {
		_ = w.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}

	h.mu.Lock()
	h.snapshots = append(h.snapshots, name)
	h.mu.Unlock()
	tracef("wrote snapshot %s", name)
	return nil
}

// Composite renders the stage: overlay plus skeleton layer on the left,
// video on the right. Surfaces not yet presented are white.
func (h *Headless) Composite() *image.RGBA {
	h.mu.Lock()
	video, overlay, skel, opacity := h.video, h.overlay, h.skeleton, h.opacity
	h.mu.Unlock()

	w, ht := h.cfg.Width, h.cfg.Height
	out := image.NewRGBA(image.Rect(0, 0, 2*w, ht))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)

	left := image.Rect(0, 0, w, ht)
	if overlay != nil {
		draw.Draw(out, left, overlay, overlay.Bounds().Min, draw.Src)
	}
	if skel != nil && opacity > 0 {
		mask := image.NewUniform(color.Alpha{A: opacity})
		draw.DrawMask(out, left, skel, skel.Bounds().Min, mask, image.Point{}, draw.Over)
	}
	if video != nil {
		draw.Draw(out, image.Rect(w, 0, 2*w, ht), video, image.Point{}, draw.Src)
	}
	return out
}

// Info returns the status line.
func (h *Headless) Info() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.info
}

// Opacity returns the skeleton layer opacity.
func (h *Headless) Opacity() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opacity
}

// Frames returns the number of completed frames.
func (h *Headless) Frames() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Snapshots returns the names of the snapshots written so far.
func (h *Headless) Snapshots() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.snapshots...)
}
