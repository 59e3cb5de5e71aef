package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/depthview/internal/control"
	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/display"
	"github.com/banshee-data/depthview/internal/fsutil"
	"github.com/banshee-data/depthview/internal/skeleton"
	"github.com/banshee-data/depthview/internal/source"
	"github.com/banshee-data/depthview/internal/timeutil"
)

// fakeSource hands out small uniform frame sets. failAt injects err on that
// call to Next (1-based).
type fakeSource struct {
	mu       sync.Mutex
	calls    int
	failAt   int
	err      error
	started  bool
	stopped  bool
	closed   bool
	startErr error
	depthMM  uint16 // every depth sample; 0 means 1000
}

func (s *fakeSource) Open(context.Context) error { return nil }

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeSource) Next(ctx context.Context) (*source.FrameSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, source.ErrNotStarted
	}
	s.calls++
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, s.err
	}
	v := s.depthMM
	if v == 0 {
		v = 1000
	}
	f := depth.NewFrame(64, 48)
	for i := range f.Data {
		f.Data[i] = v
	}
	return &source.FrameSet{Seq: uint64(s.calls), Color: source.NewColorFrame(32, 24), Depth: f}, nil
}

func (s *fakeSource) Register(set *source.FrameSet) (*source.FrameSet, error) {
	return source.Register(set)
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) shutDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped && s.closed
}

type fakeDisplay struct {
	mu          sync.Mutex
	videos      int
	overlays    int
	lastOverlay *depth.RGBImage
	opacity     uint8
	info        string
	redraws     int
	committed   int
	ends        int
}

func (d *fakeDisplay) PresentVideo(*source.ColorFrame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.videos++
	return nil
}

func (d *fakeDisplay) PresentOverlay(img *depth.RGBImage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlays++
	d.lastOverlay = img
	return nil
}

func (d *fakeDisplay) SetOverlayOpacity(alpha uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opacity = alpha
}

func (d *fakeDisplay) SetInfo(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = text
}

func (d *fakeDisplay) Redraw(paint func(c vg.Canvas, width, height int) bool) error {
	c := vgimg.NewWith(vgimg.UseWH(64, 48), vgimg.UseDPI(72))
	drew := paint(c, 64, 48)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.redraws++
	if drew {
		d.committed++
	}
	return nil
}

func (d *fakeDisplay) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ends++
	return nil
}

func (d *fakeDisplay) counts() (videos, overlays, redraws, ends int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.videos, d.overlays, d.redraws, d.ends
}

// manualTracker hands out result channels the test completes by hand.
type manualTracker struct {
	mu      sync.Mutex
	opts    skeleton.Options
	pending []chan skeleton.Result
	bufs    []*depth.Reduced
}

func (m *manualTracker) Configure(opts skeleton.Options) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = opts
}

func (m *manualTracker) Options() skeleton.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

func (m *manualTracker) TrackJoints(_ context.Context, buf *depth.Reduced) <-chan skeleton.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan skeleton.Result, 1)
	m.pending = append(m.pending, ch)
	m.bufs = append(m.bufs, buf)
	return ch
}

func (m *manualTracker) requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *manualTracker) finish(i int, res skeleton.Result) {
	m.mu.Lock()
	ch := m.pending[i]
	m.mu.Unlock()
	ch <- res
}

// instantTracker completes every request with a one-joint list.
type instantTracker struct{ manualTracker }

func (t *instantTracker) TrackJoints(ctx context.Context, buf *depth.Reduced) <-chan skeleton.Result {
	ch := t.manualTracker.TrackJoints(ctx, buf)
	t.finish(t.requests()-1, skeleton.Result{Joints: headAt(20)})
	return ch
}

func headAt(x int) *skeleton.JointList {
	l := new(skeleton.JointList)
	l[skeleton.Head] = &skeleton.Joint{ScreenX: x, ScreenY: 10, Z: 1000}
	return l
}

func newTestRuntime(t *testing.T, src FrameSource, tr skeleton.Tracker, clock timeutil.Clock) (*Runtime, *fakeDisplay) {
	t.Helper()
	disp := &fakeDisplay{}
	rt := NewRuntime(context.Background(), control.DefaultParams(skeleton.DefaultOptions()), src, disp, tr, clock)
	return rt, disp
}

func startedSource(t *testing.T) *fakeSource {
	t.Helper()
	src := &fakeSource{}
	require.NoError(t, src.Start())
	return src
}

func waitIdle(t *testing.T, rt *Runtime) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rt.Manager.Wait(ctx))
}

func TestTick_PresentsAndSubmits(t *testing.T) {
	tr := &manualTracker{}
	rt, disp := newTestRuntime(t, startedSource(t), tr, nil)
	p := NewPump(rt, PumpConfig{})

	require.NoError(t, p.Tick(context.Background()))

	videos, overlays, redraws, ends := disp.counts()
	assert.Equal(t, 1, videos)
	assert.Equal(t, 1, overlays)
	assert.Equal(t, 0, redraws)
	assert.Equal(t, 1, ends)
	assert.Equal(t, 1, tr.requests())
	assert.Equal(t, uint64(1), p.Frames())

	// The overlay is at source geometry with one dot per 8x8 cell.
	disp.mu.Lock()
	assert.Equal(t, 64, disp.lastOverlay.Width)
	assert.Equal(t, 48, disp.lastOverlay.Height)
	assert.Equal(t, depth.Accent, disp.lastOverlay.At(8, 8))
	disp.mu.Unlock()
}

func TestTick_DroppedFrameShowsColourOnly(t *testing.T) {
	tr := &manualTracker{}
	rt, disp := newTestRuntime(t, startedSource(t), tr, nil)
	p := NewPump(rt, PumpConfig{})

	require.NoError(t, p.Tick(context.Background()))
	disp.mu.Lock()
	first := disp.lastOverlay
	disp.mu.Unlock()
	require.NoError(t, p.Tick(context.Background()))

	videos, overlays, _, _ := disp.counts()
	assert.Equal(t, 2, videos, "colour is shown for every frame")
	assert.Equal(t, 1, overlays, "a dropped frame's depth is discarded")
	disp.mu.Lock()
	assert.Same(t, first, disp.lastOverlay)
	disp.mu.Unlock()
	assert.Equal(t, 1, tr.requests(), "busy tracker must not receive a second buffer")

	sum := rt.Stats.Summary()
	assert.Equal(t, uint64(2), sum.Frames)
	assert.Equal(t, uint64(1), sum.Submitted)
	assert.Equal(t, uint64(1), sum.Dropped)
}

func TestTick_RedrawsOncePerResult(t *testing.T) {
	tr := &manualTracker{}
	rt, disp := newTestRuntime(t, startedSource(t), tr, nil)
	p := NewPump(rt, PumpConfig{})
	ctx := context.Background()

	require.NoError(t, p.Tick(ctx))
	tr.finish(0, skeleton.Result{Joints: headAt(30)})
	waitIdle(t, rt)
	require.Eventually(t, rt.invalidated.Load, time.Second, time.Millisecond)

	require.NoError(t, p.Tick(ctx))
	_, _, redraws, _ := disp.counts()
	assert.Equal(t, 1, redraws)
	disp.mu.Lock()
	assert.Equal(t, 1, disp.committed, "the stored list is drawn")
	disp.mu.Unlock()

	require.NoError(t, p.Tick(ctx))
	_, _, redraws, _ = disp.counts()
	assert.Equal(t, 1, redraws, "no completion, no redraw")

	tr.finish(1, skeleton.Result{Err: skeleton.ErrNoUser})
	waitIdle(t, rt)
	require.NoError(t, p.Tick(ctx))
	_, _, redraws, _ = disp.counts()
	assert.Equal(t, 2, redraws)
	disp.mu.Lock()
	assert.Equal(t, 2, disp.committed, "a failed request commits an empty surface")
	disp.mu.Unlock()
}

func TestTick_HiddenSkeletonDefersRedraw(t *testing.T) {
	tr := &manualTracker{}
	rt, disp := newTestRuntime(t, startedSource(t), tr, nil)
	p := NewPump(rt, PumpConfig{})
	ctx := context.Background()

	require.True(t, p.Send(control.KeySpace))
	require.NoError(t, p.Tick(ctx))
	assert.False(t, rt.Params.ShowSkeleton)

	tr.finish(0, skeleton.Result{Joints: headAt(30)})
	waitIdle(t, rt)
	require.Eventually(t, rt.invalidated.Load, time.Second, time.Millisecond)

	require.NoError(t, p.Tick(ctx))
	_, _, redraws, _ := disp.counts()
	assert.Equal(t, 0, redraws)

	require.True(t, p.Send(control.KeySpace))
	require.NoError(t, p.Tick(ctx))
	_, _, redraws, _ = disp.counts()
	assert.Equal(t, 1, redraws, "pending result is drawn once the skeleton view returns")
}

func TestTick_KeysApplyBeforeSubmission(t *testing.T) {
	tr := &manualTracker{}
	rt, disp := newTestRuntime(t, startedSource(t), tr, nil)
	p := NewPump(rt, PumpConfig{})

	require.True(t, p.Send(control.KeyPlus))
	require.True(t, p.Send(control.KeyPlus))
	require.NoError(t, p.Tick(context.Background()))

	require.Equal(t, 1, tr.requests())
	tr.mu.Lock()
	buf := tr.bufs[0]
	tr.mu.Unlock()
	assert.Equal(t, uint16(3020), buf.Window.End)

	disp.mu.Lock()
	assert.Contains(t, disp.info, "Threshold: 3020")
	disp.mu.Unlock()
}

func TestSend_FullQueueDrops(t *testing.T) {
	rt, _ := newTestRuntime(t, startedSource(t), &manualTracker{}, nil)
	p := NewPump(rt, PumpConfig{})

	sent := 0
	for i := 0; i < 100; i++ {
		if p.Send(control.KeySmoothing) {
			sent++
		}
	}
	assert.Less(t, sent, 100)
	assert.Equal(t, uint64(100-sent), p.ignored.Load())
}

func TestTick_SourceErrorsAreWrapped(t *testing.T) {
	src := startedSource(t)
	src.failAt = 1
	src.err = source.ErrTimeout
	rt, disp := newTestRuntime(t, src, &manualTracker{}, nil)
	p := NewPump(rt, PumpConfig{})

	err := p.Tick(context.Background())
	require.ErrorIs(t, err, source.ErrTimeout)
	videos, _, _, ends := disp.counts()
	assert.Zero(t, videos)
	assert.Zero(t, ends)
	assert.Zero(t, p.Frames())
}

// runPump runs p in the background and advances clock until Run returns.
func runPump(t *testing.T, ctx context.Context, p *Pump, clock *timeutil.MockClock) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.Tickers() > 0 }, time.Second, time.Millisecond)
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			t.Fatal("pump did not stop")
			return nil
		default:
			clock.Advance(50 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	}
}

func TestRun_StopsAfterMaxFrames(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{}
	tr := &instantTracker{}
	rt, disp := newTestRuntime(t, src, tr, clock)
	p := NewPump(rt, PumpConfig{FrameRate: 20, MaxFrames: 3})

	require.NoError(t, runPump(t, context.Background(), p, clock))

	assert.Equal(t, uint64(3), p.Frames())
	assert.True(t, src.shutDown())
	_, _, _, ends := disp.counts()
	assert.Equal(t, 3, ends)

	disp.mu.Lock()
	assert.Equal(t, control.OverlayShown, disp.opacity, "controller state is pushed at start")
	assert.Contains(t, disp.info, "Current View: Skeleton")
	disp.mu.Unlock()
	assert.True(t, tr.Options().SmoothingEnabled)
}

func TestRun_TimeoutEndsRun(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{failAt: 1, err: source.ErrTimeout}
	rt, _ := newTestRuntime(t, src, &instantTracker{}, clock)
	p := NewPump(rt, PumpConfig{FrameRate: 20, MaxFrames: 3})

	err := runPump(t, context.Background(), p, clock)
	require.ErrorIs(t, err, source.ErrTimeout)
	assert.Zero(t, p.Frames(), "no tick runs after the timeout")
	assert.True(t, src.shutDown())
}

func TestRun_SourceFailureEndsRun(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{failAt: 2, err: source.ErrClosed}
	rt, _ := newTestRuntime(t, src, &instantTracker{}, clock)
	p := NewPump(rt, PumpConfig{FrameRate: 20})

	err := runPump(t, context.Background(), p, clock)
	require.ErrorIs(t, err, source.ErrClosed)
	assert.Equal(t, uint64(1), p.Frames())
	assert.True(t, src.shutDown())
}

func TestRun_StartFailureClosesSource(t *testing.T) {
	boom := errors.New("no device")
	src := &fakeSource{startErr: boom}
	rt, _ := newTestRuntime(t, src, &manualTracker{}, nil)
	p := NewPump(rt, PumpConfig{})

	err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)
	src.mu.Lock()
	assert.True(t, src.closed)
	src.mu.Unlock()
}

func TestRun_CancelWaitsForInFlightRequest(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := &fakeSource{}
	tr := &manualTracker{}
	rt, _ := newTestRuntime(t, src, tr, clock)
	p := NewPump(rt, PumpConfig{FrameRate: 20})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.Tickers() > 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		clock.Advance(50 * time.Millisecond)
		return tr.requests() > 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
		t.Fatal("Run returned while a tracking request was in flight")
	case <-time.After(20 * time.Millisecond):
	}

	tr.finish(0, skeleton.Result{Joints: headAt(1)})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the request completed")
	}
	assert.True(t, src.shutDown())
	assert.Equal(t, uint64(1), rt.Manager.Stats().Completed)
}

func TestPipeline_SyntheticEndToEnd(t *testing.T) {
	cfg := source.DefaultSyntheticConfig()
	src := source.NewSynthetic(cfg, nil)
	require.NoError(t, src.Open(context.Background()))
	require.NoError(t, src.Start())
	defer src.Close()

	mfs := fsutil.NewMemoryFileSystem()
	disp, err := display.NewHeadless(display.Config{
		Width:         cfg.DepthWidth,
		Height:        cfg.DepthHeight,
		FS:            mfs,
		Dir:           "/snaps",
		SnapshotEvery: 2,
	})
	require.NoError(t, err)

	tracker := skeleton.NewExtremaTracker()
	rt := NewRuntime(context.Background(), control.DefaultParams(tracker.Options()), src, disp, tracker, nil)
	rt.Controller.Sync()
	p := NewPump(rt, PumpConfig{})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Tick(ctx))
		waitIdle(t, rt)
	}
	tracker.Wait()

	assert.Equal(t, uint64(4), disp.Frames())
	assert.Len(t, disp.Snapshots(), 2)
	assert.GreaterOrEqual(t, rt.Manager.Stats().Completed, uint64(1), "the synthetic figure should be tracked")
	assert.Contains(t, disp.Info(), "Threshold: 3000")
}

func TestPipeline_FailedRequestBlanksSkeletonLayer(t *testing.T) {
	// Depth beyond the window leaves the overlay white, so the left half of
	// the composite is the skeleton layer alone.
	src := &fakeSource{depthMM: 5000}
	require.NoError(t, src.Start())
	disp, err := display.NewHeadless(display.Config{Width: 64, Height: 48, FS: fsutil.NewMemoryFileSystem()})
	require.NoError(t, err)
	tr := &manualTracker{}
	rt := NewRuntime(context.Background(), control.DefaultParams(skeleton.DefaultOptions()), src, disp, tr, nil)
	rt.Controller.Sync()
	p := NewPump(rt, PumpConfig{})
	ctx := context.Background()

	leftIsWhite := func() bool {
		img := disp.Composite()
		for y := 0; y < 48; y++ {
			for x := 0; x < 64; x++ {
				r, g, b, _ := img.At(x, y).RGBA()
				if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
					return false
				}
			}
		}
		return true
	}

	require.NoError(t, p.Tick(ctx))
	tr.finish(0, skeleton.Result{Joints: headAt(30)})
	waitIdle(t, rt)
	require.NoError(t, p.Tick(ctx))
	require.False(t, leftIsWhite(), "the head disc is drawn")

	tr.finish(1, skeleton.Result{Err: errors.New("tracker failed")})
	waitIdle(t, rt)
	require.NoError(t, p.Tick(ctx))
	assert.True(t, leftIsWhite(), "after a failed request the skeleton layer is blank")
}

func TestPipeline_FailureDiscardsUndrawnList(t *testing.T) {
	tr := &manualTracker{}
	rt, _ := newTestRuntime(t, startedSource(t), tr, nil)
	p := NewPump(rt, PumpConfig{})

	require.NoError(t, p.Tick(context.Background()))
	rt.Slot.Store(headAt(5))
	tr.finish(0, skeleton.Result{Err: skeleton.ErrNoUser})
	waitIdle(t, rt)

	_, ok := rt.Slot.Take()
	assert.False(t, ok, "a list older than the failure is not drawn")
	assert.True(t, rt.blank.Load())
	assert.True(t, rt.invalidated.Load())
}
