package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/depthview/internal/control"
	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/source"
)

// frameLogInterval is how often, in frames, the pump reports progress.
const frameLogInterval = 100

// PumpConfig configures a Pump.
type PumpConfig struct {
	FrameRate     float64       // ticks per second; defaults to 30
	FrameTimeout  time.Duration // bound on each Next call; defaults to 1s
	StatsInterval time.Duration // zero disables periodic stats reports
	MaxFrames     uint64        // stop after this many frames; zero runs until cancelled
	DrainTimeout  time.Duration // shutdown wait for the in-flight request; defaults to 5s
}

// Pump is the viewer's main loop. All ticks and all controller commands
// run on the goroutine calling Run, so the parameter state has a single
// writer.
type Pump struct {
	rt   *Runtime
	cfg  PumpConfig
	keys chan control.Key

	frames  atomic.Uint64
	ignored atomic.Uint64
}

// NewPump creates a Pump for rt.
func NewPump(rt *Runtime, cfg PumpConfig) *Pump {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &Pump{rt: rt, cfg: cfg, keys: make(chan control.Key, 16)}
}

// Send queues a key press to be applied before the next tick. It never
// blocks; it reports false when the queue is full and the key was dropped.
func (p *Pump) Send(k control.Key) bool {
	select {
	case p.keys <- k:
		return true
	default:
		p.ignored.Add(1)
		return false
	}
}

// Frames returns the number of frame sets processed.
func (p *Pump) Frames() uint64 {
	return p.frames.Load()
}

func (p *Pump) drainKeys() {
	for {
		select {
		case k := <-p.keys:
			if !p.rt.Controller.HandleKey(k) {
				diagf("unbound key %q", k)
			}
		default:
			return
		}
	}
}

// Tick runs one iteration: apply pending commands, pull and register a
// frame set, present colour, submit depth for tracking (presenting its
// overlay) and redraw the skeleton when a new result has arrived. A frame
// dropped because the tracker is busy shows colour only.
//
// Only frame source failures are returned. Display and tracking problems
// are logged and the tick carries on.
func (p *Pump) Tick(ctx context.Context) error {
	rt := p.rt
	p.drainKeys()

	nctx, cancel := context.WithTimeout(ctx, p.cfg.FrameTimeout)
	set, err := rt.Source.Next(nctx)
	cancel()
	if err != nil {
		return fmt.Errorf("next frame set: %w", err)
	}
	if set, err = rt.Source.Register(set); err != nil {
		return fmt.Errorf("register frame set: %w", err)
	}

	n := p.frames.Add(1)
	if n%frameLogInterval == 0 {
		diagf("Received %d frames.", n)
	}

	if err := rt.Display.PresentVideo(set.Color); err != nil {
		opsf("present video for frame %d: %v", set.Seq, err)
	}

	params := *rt.Params
	window := params.Window()
	overlay := func(r *depth.Reduced) {
		if err := rt.Display.PresentOverlay(depth.Rasterize(r)); err != nil {
			opsf("present overlay for frame %d: %v", set.Seq, err)
		}
	}

	submitted, err := rt.Manager.Submit(set.Depth, params.DecimationFactor, window, overlay)
	switch {
	case err != nil:
		opsf("skipping tracking for frame %d: %v", set.Seq, err)
	case !submitted:
		// Tracker busy: the depth data is discarded, colour was already shown.
		tracef("frame %d dropped: tracker busy", set.Seq)
	}
	rt.Stats.RecordFrame(submitted)

	if params.ShowSkeleton && rt.invalidated.CompareAndSwap(true, false) {
		if err := rt.Display.Redraw(rt.drawSkeleton); err != nil {
			opsf("redraw skeleton: %v", err)
		}
	}

	if err := rt.Display.EndFrame(); err != nil {
		opsf("end frame %d: %v", set.Seq, err)
	}
	return nil
}

// Run opens and starts the source, then ticks at the configured rate until
// ctx is done, MaxFrames is reached or the source fails. Any source error,
// a frame timeout included, ends the run and is returned. Shutdown waits
// for the in-flight tracking request, then stops and closes the source.
func (p *Pump) Run(ctx context.Context) error {
	rt := p.rt
	if err := rt.Source.Open(ctx); err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	if err := rt.Source.Start(); err != nil {
		_ = rt.Source.Close()
		return fmt.Errorf("start source: %w", err)
	}
	if d, ok := rt.Source.(interface{ Info() source.DeviceInfo }); ok {
		info := d.Info()
		diagf("device serial: %s", info.Serial)
		diagf("device firmware: %s", info.Firmware)
		diagf("packet pipeline: %s", info.Pipeline)
	}
	rt.Controller.Sync()

	interval := time.Duration(float64(time.Second) / p.cfg.FrameRate)
	ticker := rt.Clock.NewTicker(interval)
	defer ticker.Stop()

	var statsC <-chan time.Time
	if p.cfg.StatsInterval > 0 {
		st := rt.Clock.NewTicker(p.cfg.StatsInterval)
		defer st.Stop()
		statsC = st.C()
	}

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-statsC:
			rt.Stats.Report()
		case <-ticker.C():
			err := p.Tick(ctx)
			switch {
			case err == nil:
			case ctx.Err() != nil:
				break loop
			default:
				opsf("frame source failed: %v", err)
				runErr = err
				break loop
			}
			if p.cfg.MaxFrames > 0 && p.frames.Load() >= p.cfg.MaxFrames {
				diagf("stopping after %d frames", p.frames.Load())
				break loop
			}
		}
	}

	p.shutdown()
	return runErr
}

func (p *Pump) shutdown() {
	rt := p.rt
	wctx, cancel := context.WithTimeout(context.Background(), p.cfg.DrainTimeout)
	defer cancel()
	if err := rt.Manager.Wait(wctx); err != nil {
		opsf("in-flight tracking request did not finish: %v", err)
	}
	if err := rt.Source.Stop(); err != nil {
		opsf("stop source: %v", err)
	}
	if err := rt.Source.Close(); err != nil {
		opsf("close source: %v", err)
	}
	if n := p.ignored.Load(); n > 0 {
		diagf("%d key presses dropped with a full queue", n)
	}
	rt.Stats.Report()
}
