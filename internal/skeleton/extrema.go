package skeleton

import (
	"context"
	"math"
	"sync"

	"github.com/banshee-data/depthview/internal/depth"
)

// DefaultMinPoints is the smallest number of in-window cells treated as a
// user.
const DefaultMinPoints = 20

// ExtremaTracker is a single-user reference tracker.
//
// Head is the mean of the topmost rows of the silhouette, shoulders are the
// ends of the contiguous run through the head column one fifth of the way
// down the body, hands are the leftmost and rightmost cells when they lie
// outside the torso, and elbows sit midway between shoulder and hand.
// Each request runs on its own goroutine.
type ExtremaTracker struct {
	// MinPoints overrides DefaultMinPoints when > 0.
	MinPoints int

	mu   sync.Mutex
	opts Options
	prev *JointList

	wg sync.WaitGroup
}

// NewExtremaTracker returns a tracker configured with DefaultOptions.
func NewExtremaTracker() *ExtremaTracker {
	return &ExtremaTracker{opts: DefaultOptions()}
}

// Configure replaces the live options. The smoothing factor is clamped to
// [0,1]. Requests already running keep the options they started with.
func (t *ExtremaTracker) Configure(opts Options) {
	opts.SmoothingFactor = math.Max(0, math.Min(1, opts.SmoothingFactor))
	t.mu.Lock()
	t.opts = opts
	t.mu.Unlock()
	diagf("configured: decimation=%d smoothing=%v factor=%.2f",
		opts.Decimation, opts.SmoothingEnabled, opts.SmoothingFactor)
}

// Options returns the live options.
func (t *ExtremaTracker) Options() Options {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts
}

// TrackJoints starts detection on buf and returns a channel that receives
// exactly one Result.
func (t *ExtremaTracker) TrackJoints(ctx context.Context, buf *depth.Reduced) <-chan Result {
	ch := make(chan Result, 1)
	opts := t.Options()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		list, err := t.track(ctx, buf, opts)
		if err != nil {
			ch <- Result{Err: err}
			return
		}
		ch <- Result{Joints: t.smooth(list, opts)}
	}()
	return ch
}

// Wait blocks until every started request has delivered its result.
func (t *ExtremaTracker) Wait() {
	t.wg.Wait()
}

type cell struct {
	i, j int
	v    uint16
}

func (t *ExtremaTracker) track(ctx context.Context, buf *depth.Reduced, opts Options) (*JointList, error) {
	if buf == nil {
		return nil, ErrNoBuffer
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	factor := buf.Factor
	if factor <= 0 {
		factor = opts.Decimation
	}
	if factor <= 0 {
		factor = 1
	}
	minPoints := t.MinPoints
	if minPoints <= 0 {
		minPoints = DefaultMinPoints
	}

	var (
		points              []cell
		top, bottom         = buf.Height, -1
		leftmost, rightmost cell
	)
	for j := 0; j < buf.Height; j++ {
		for i := 0; i < buf.Width; i++ {
			v := buf.At(i, j)
			if v == 0 {
				continue
			}
			c := cell{i, j, v}
			if len(points) == 0 || i < leftmost.i {
				leftmost = c
			}
			if len(points) == 0 || i > rightmost.i {
				rightmost = c
			}
			points = append(points, c)
			if j < top {
				top = j
			}
			bottom = j
		}
	}
	if len(points) < minPoints {
		tracef("no user: %d cells in window (min %d)", len(points), minPoints)
		return nil, ErrNoUser
	}

	list := new(JointList)
	toJoint := func(i, j float64, z float64) *Joint {
		return &Joint{
			ScreenX: int(math.Round(i)) * factor,
			ScreenY: int(math.Round(j)) * factor,
			Z:       int(math.Round(z)),
		}
	}

	// Head: mean of the topmost band of rows.
	span := bottom - top
	band := span / 10
	if band < 1 {
		band = 1
	}
	var si, sj, sz float64
	var n float64
	headMin, headMax := buf.Width, -1
	for _, p := range points {
		if p.j > top+band {
			break // points are in row order
		}
		si += float64(p.i)
		sj += float64(p.j)
		sz += float64(p.v)
		n++
		if p.i < headMin {
			headMin = p.i
		}
		if p.i > headMax {
			headMax = p.i
		}
	}
	headI := si / n
	list[Head] = toJoint(headI, sj/n, sz/n)

	// Shoulders: ends of the contiguous run through the head column,
	// bounded to a few head-widths either side.
	headHalf := (headMax-headMin)/2 + 1
	maxReach := int(math.Ceil(2.5 * float64(headHalf)))
	row := top + span/5
	col := int(math.Round(headI))
	if buf.At(col, row) != 0 {
		l, r := col, col
		for l-1 >= 0 && col-(l-1) <= maxReach && buf.At(l-1, row) != 0 {
			l--
		}
		for r+1 < buf.Width && (r+1)-col <= maxReach && buf.At(r+1, row) != 0 {
			r++
		}
		list[LeftShoulder] = toJoint(float64(l), float64(row), float64(buf.At(l, row)))
		list[RightShoulder] = toJoint(float64(r), float64(row), float64(buf.At(r, row)))

		// Hands only count when they reach outside the torso.
		if l-leftmost.i > headHalf {
			list[LeftHand] = toJoint(float64(leftmost.i), float64(leftmost.j), float64(leftmost.v))
			list[LeftElbow] = midpoint(buf, l, row, leftmost, toJoint)
		}
		if rightmost.i-r > headHalf {
			list[RightHand] = toJoint(float64(rightmost.i), float64(rightmost.j), float64(rightmost.v))
			list[RightElbow] = midpoint(buf, r, row, rightmost, toJoint)
		}
	}

	tracef("tracked %d joints from %d cells (rows %d-%d)", list.Len(), len(points), top, bottom)
	return list, nil
}

func midpoint(buf *depth.Reduced, si, sj int, hand cell, toJoint func(i, j, z float64) *Joint) *Joint {
	mi := (si + hand.i) / 2
	mj := (sj + hand.j) / 2
	z := float64(buf.At(mi, mj))
	if z == 0 {
		z = (float64(buf.At(si, sj)) + float64(hand.v)) / 2
	}
	return toJoint(float64(mi), float64(mj), z)
}

// smooth blends list with the previous result when smoothing is enabled and
// records list as the new previous result.
func (t *ExtremaTracker) smooth(list *JointList, opts Options) *JointList {
	t.mu.Lock()
	defer t.mu.Unlock()

	if opts.SmoothingEnabled && t.prev != nil && opts.SmoothingFactor > 0 {
		f := opts.SmoothingFactor
		blend := func(old, cur int) int {
			return int(math.Round(f*float64(old) + (1-f)*float64(cur)))
		}
		for id, cur := range list {
			old := t.prev[id]
			if cur == nil || old == nil {
				continue
			}
			cur.ScreenX = blend(old.ScreenX, cur.ScreenX)
			cur.ScreenY = blend(old.ScreenY, cur.ScreenY)
			cur.Z = blend(old.Z, cur.Z)
		}
	}
	t.prev = list.Clone()
	return list
}
