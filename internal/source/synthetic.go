package source

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/timeutil"
	"github.com/banshee-data/depthview/internal/version"
)

// SyntheticConfig configures a Synthetic source.
type SyntheticConfig struct {
	Serial   string
	Pipeline Pipeline

	DepthWidth  int
	DepthHeight int
	ColorWidth  int
	ColorHeight int

	// FrameRate sets the simulated time between frames, which drives the
	// figure's motion.
	FrameRate float64

	// Timeout bounds each Next call when the caller's context has no
	// deadline.
	Timeout time.Duration

	// MaxFrames ends the stream with ErrClosed after that many frames.
	// Zero streams forever.
	MaxFrames uint64

	BackgroundMM float64 // distance of the back wall
	FigureMM     float64 // distance of the figure
	NoiseMM      float64 // peak uniform noise added to every reading
	Seed         int64
}

// DefaultSyntheticConfig returns a source shaped like the reference sensor:
// 512×424 depth, 1920×1080 colour, 30 frames per second.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Serial:       "000000000000",
		Pipeline:     PipelineCPU,
		DepthWidth:   512,
		DepthHeight:  424,
		ColorWidth:   1920,
		ColorHeight:  1080,
		FrameRate:    30,
		Timeout:      time.Second,
		BackgroundMM: 4500,
		FigureMM:     2000,
		NoiseMM:      5,
		Seed:         1,
	}
}

type sourceState int

const (
	stateNew sourceState = iota
	stateOpen
	stateStarted
	stateStopped
	stateClosed
)

// Synthetic generates frame sets showing a single figure swaying in front
// of a wall and slowly raising and lowering its arms.
type Synthetic struct {
	cfg   SyntheticConfig
	clock timeutil.Clock

	mu    sync.Mutex
	state sourceState
	seq   uint64
	rng   *rand.Rand
}

// NewSynthetic creates a Synthetic source. A nil clock uses the real clock.
func NewSynthetic(cfg SyntheticConfig, clock timeutil.Clock) *Synthetic {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Pipeline == "" {
		cfg.Pipeline = PipelineCPU
	}
	return &Synthetic{
		cfg:   cfg,
		clock: clock,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Info returns the simulated device's identity.
func (s *Synthetic) Info() DeviceInfo {
	return DeviceInfo{
		Serial:   s.cfg.Serial,
		Firmware: "synthetic-" + version.Version,
		Pipeline: s.cfg.Pipeline,
	}
}

// Open prepares the source.
func (s *Synthetic) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateNew {
		return errors.New("open: source already opened")
	}
	if s.cfg.DepthWidth <= 0 || s.cfg.DepthHeight <= 0 || s.cfg.ColorWidth <= 0 || s.cfg.ColorHeight <= 0 {
		return fmt.Errorf("open: invalid geometry depth=%dx%d colour=%dx%d",
			s.cfg.DepthWidth, s.cfg.DepthHeight, s.cfg.ColorWidth, s.cfg.ColorHeight)
	}
	s.state = stateOpen
	return nil
}

// Start begins streaming.
func (s *Synthetic) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateOpen {
		return errors.New("start: source not open")
	}
	s.state = stateStarted
	return nil
}

// Next returns the next frame set.
func (s *Synthetic) Next(ctx context.Context) (*FrameSet, error) {
	if _, ok := ctx.Deadline(); !ok && s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateStarted:
	case stateStopped, stateClosed:
		return nil, ErrClosed
	default:
		return nil, ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	if s.cfg.MaxFrames > 0 && s.seq >= s.cfg.MaxFrames {
		return nil, ErrClosed
	}

	s.seq++
	elapsed := float64(s.seq-1) / s.cfg.FrameRate
	pose := s.poseAt(elapsed)

	d, err := s.depthFrame(pose)
	if err != nil {
		return nil, err
	}
	return &FrameSet{
		Seq:       s.seq,
		Timestamp: s.clock.Now(),
		Color:     s.colorFrame(d),
		Depth:     d,
	}, nil
}

// Register maps the colour frame onto depth geometry.
func (s *Synthetic) Register(set *FrameSet) (*FrameSet, error) {
	return Register(set)
}

// Stop ends streaming. Next returns ErrClosed afterwards.
func (s *Synthetic) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateStarted {
		s.state = stateStopped
	}
	return nil
}

// Close releases the source. It is safe to call more than once.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
	return nil
}

// pose is the figure's geometry in depth pixels.
type pose struct {
	cx       float64 // horizontal centre
	headY    float64
	headR    float64
	torsoTop float64
	torsoBot float64
	torsoHW  float64 // half width
	armLen   float64
	armAngle float64 // radians below horizontal; 0 is a T-pose
	armHW    float64 // half thickness
	legBot   float64
}

func (s *Synthetic) poseAt(t float64) pose {
	w, h := float64(s.cfg.DepthWidth), float64(s.cfg.DepthHeight)
	return pose{
		cx:       w/2 + w/6*math.Sin(2*math.Pi*0.05*t),
		headY:    h * 0.19,
		headR:    h * 0.05,
		torsoTop: h * 0.25,
		torsoBot: h * 0.70,
		torsoHW:  w * 0.08,
		armLen:   w * 0.28,
		armAngle: math.Pi / 3 * (0.5 + 0.5*math.Sin(2*math.Pi*0.2*t)),
		armHW:    h * 0.018,
		legBot:   h * 0.97,
	}
}

// covers reports whether depth pixel (x, y) belongs to the figure.
func (p pose) covers(x, y float64) bool {
	dx, dy := x-p.cx, y-p.headY
	if dx*dx+dy*dy <= p.headR*p.headR {
		return true
	}
	if y >= p.torsoTop && y <= p.torsoBot && math.Abs(x-p.cx) <= p.torsoHW {
		return true
	}
	// Legs: two columns under the torso.
	if y > p.torsoBot && y <= p.legBot {
		off := math.Abs(x - p.cx)
		if off >= p.torsoHW*0.2 && off <= p.torsoHW*0.9 {
			return true
		}
	}
	// Arms: segments from each shoulder.
	sy := p.torsoTop + p.armHW
	for _, side := range []float64{-1, 1} {
		sx := p.cx + side*p.torsoHW
		ex := sx + side*p.armLen*math.Cos(p.armAngle)
		ey := sy + p.armLen*math.Sin(p.armAngle)
		if segmentDist(x, y, sx, sy, ex, ey) <= p.armHW {
			return true
		}
	}
	return false
}

func segmentDist(px, py, ax, ay, bx, by float64) float64 {
	vx, vy := bx-ax, by-ay
	wx, wy := px-ax, py-ay
	l2 := vx*vx + vy*vy
	t := 0.0
	if l2 > 0 {
		t = math.Max(0, math.Min(1, (wx*vx+wy*vy)/l2))
	}
	dx, dy := px-(ax+t*vx), py-(ay+t*vy)
	return math.Hypot(dx, dy)
}

func (s *Synthetic) depthFrame(p pose) (*depth.Frame, error) {
	w, h := s.cfg.DepthWidth, s.cfg.DepthHeight
	samples := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			z := s.cfg.BackgroundMM
			if p.covers(float64(x), float64(y)) {
				z = s.cfg.FigureMM
			}
			if s.cfg.NoiseMM > 0 {
				z += (s.rng.Float64()*2 - 1) * s.cfg.NoiseMM
			}
			samples[y*w+x] = float32(z)
		}
	}
	return depth.FromFloat32(w, h, samples)
}

var (
	wallTop    = color.RGBA{R: 90, G: 110, B: 140, A: 255}
	wallBottom = color.RGBA{R: 40, G: 45, B: 55, A: 255}
	figureTone = color.RGBA{R: 210, G: 160, B: 120, A: 255}
)

// colorFrame paints a wall gradient with the figure's silhouette, sampled
// from d so both streams agree.
func (s *Synthetic) colorFrame(d *depth.Frame) *ColorFrame {
	cw, ch := s.cfg.ColorWidth, s.cfg.ColorHeight
	c := NewColorFrame(cw, ch)
	for y := 0; y < ch; y++ {
		f := float64(y) / float64(ch)
		row := color.RGBA{
			R: lerp(wallTop.R, wallBottom.R, f),
			G: lerp(wallTop.G, wallBottom.G, f),
			B: lerp(wallTop.B, wallBottom.B, f),
			A: 255,
		}
		dy := y * d.Height / ch
		for x := 0; x < cw; x++ {
			dx := x * d.Width / cw
			if float64(d.At(dx, dy)) < (s.cfg.FigureMM+s.cfg.BackgroundMM)/2 {
				c.setBGRA(x, y, figureTone)
			} else {
				c.setBGRA(x, y, row)
			}
		}
	}
	return c
}

func lerp(a, b uint8, f float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*f)
}
