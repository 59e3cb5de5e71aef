package source

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/skeleton"
	"github.com/banshee-data/depthview/internal/timeutil"
)

func startedSource(t *testing.T, cfg SyntheticConfig) *Synthetic {
	t.Helper()
	s := NewSynthetic(cfg, timeutil.NewMockClock(time.Unix(1700000000, 0)))
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSynthetic_Lifecycle(t *testing.T) {
	s := NewSynthetic(DefaultSyntheticConfig(), nil)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.Error(t, s.Start(), "start before open")
	require.NoError(t, s.Open(context.Background()))
	assert.Error(t, s.Open(context.Background()), "double open")
	require.NoError(t, s.Start())

	set, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), set.Seq)

	require.NoError(t, s.Stop())
	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestSynthetic_OpenRejectsBadGeometry(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.DepthWidth = 0
	assert.Error(t, NewSynthetic(cfg, nil).Open(context.Background()))
}

func TestSynthetic_FrameGeometryAndContent(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	s := startedSource(t, cfg)

	set, err := s.Next(context.Background())
	require.NoError(t, err)

	require.NotNil(t, set.Depth)
	assert.Equal(t, 512, set.Depth.Width)
	assert.Equal(t, 424, set.Depth.Height)
	assert.Len(t, set.Depth.Data, 512*424)

	require.NotNil(t, set.Color)
	assert.Equal(t, 1920, set.Color.Width)
	assert.Equal(t, 1080, set.Color.Height)
	assert.Len(t, set.Color.Pix, 1920*1080*4)
	assert.Nil(t, set.Registered, "registration is a separate step")

	// Torso centre is on the figure; a top corner is the wall.
	assert.InDelta(t, 2000, float64(set.Depth.At(256, 200)), cfg.NoiseMM+1)
	assert.InDelta(t, 4500, float64(set.Depth.At(5, 5)), cfg.NoiseMM+1)
}

func TestSynthetic_MaxFramesEndsStream(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.MaxFrames = 2
	s := startedSource(t, cfg)

	for i := 0; i < 2; i++ {
		_, err := s.Next(context.Background())
		require.NoError(t, err)
	}
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSynthetic_ExpiredContextTimesOut(t *testing.T) {
	s := startedSource(t, DefaultSyntheticConfig())

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSynthetic_Info(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Serial = "123456789012"
	cfg.Pipeline = PipelineCL
	info := NewSynthetic(cfg, nil).Info()

	assert.Equal(t, "123456789012", info.Serial)
	assert.Equal(t, PipelineCL, info.Pipeline)
	assert.Contains(t, info.Firmware, "synthetic-")
}

func TestSynthetic_FigureIsTrackable(t *testing.T) {
	s := startedSource(t, DefaultSyntheticConfig())
	set, err := s.Next(context.Background())
	require.NoError(t, err)

	r, err := depth.Reduce(set.Depth, 8, depth.Window{Begin: 500, End: 3000})
	require.NoError(t, err)

	tr := skeleton.NewExtremaTracker()
	res := <-tr.TrackJoints(context.Background(), r)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Joints.Get(skeleton.Head))
	assert.InDelta(t, 256, res.Joints.Get(skeleton.Head).ScreenX, 16)
	assert.InDelta(t, 2000, res.Joints.Get(skeleton.Head).Z, 10)
}

func TestRegister(t *testing.T) {
	s := startedSource(t, DefaultSyntheticConfig())
	set, err := s.Next(context.Background())
	require.NoError(t, err)

	set.Depth.Set(10, 10, 0)
	out, err := s.Register(set)
	require.NoError(t, err)
	require.Same(t, set, out)
	require.NotNil(t, out.Registered)

	reg := out.Registered
	assert.Equal(t, 512, reg.Width)
	assert.Equal(t, 424, reg.Height)
	assert.Equal(t, color.RGBA{}, reg.At(10, 10), "no depth reading, no colour")

	// The torso is painted in the figure tone in both images.
	assert.Equal(t, figureTone, reg.At(256, 200))
}

func TestRegister_Incomplete(t *testing.T) {
	_, err := Register(nil)
	assert.Error(t, err)
	_, err = Register(&FrameSet{Color: NewColorFrame(4, 4)})
	assert.Error(t, err)
}

func TestColorFrame_BGRAOrder(t *testing.T) {
	c := NewColorFrame(2, 1)
	c.Set(1, 0, color.RGBA{R: 1, G: 2, B: 3, A: 4})

	assert.Equal(t, []uint8{0, 0, 0, 0, 3, 2, 1, 4}, c.Pix)
	assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 4}, c.At(1, 0))
	assert.Equal(t, color.RGBA{}, c.At(5, 5))
}

func TestParsePipeline(t *testing.T) {
	tests := []struct {
		in      string
		want    Pipeline
		wantErr bool
	}{
		{"", PipelineCPU, false},
		{"cpu", PipelineCPU, false},
		{"GL", PipelineGL, false},
		{"cl", PipelineCL, false},
		{"cuda", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePipeline(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
