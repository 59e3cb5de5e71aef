// Package tracking drives an asynchronous skeleton tracker one request at a
// time.
//
// The Manager is a two-state machine. Idle: a new depth frame is reduced
// and submitted, moving to Pending. Pending: further frames are dropped
// rather than queued, so in-flight work and memory stay constant however
// slow the tracker is. On completion the joint list (if any) is stored in a
// JointSlot, the reduced buffer is released with its request, and the
// manager returns to Idle. Submissions come from the display goroutine;
// completions arrive on a goroutine per request.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/skeleton"
	"github.com/banshee-data/depthview/internal/timeutil"
)

var (
	errTrackerClosed = errors.New("tracker closed its result channel without a result")
	errEmptyResult   = errors.New("tracker returned neither joints nor an error")
)

// Completion describes one finished tracking request.
type Completion struct {
	ID      uuid.UUID
	Latency time.Duration
	Joints  int
	Err     error
}

// Config holds the Manager's collaborators.
type Config struct {
	Tracker skeleton.Tracker
	Slot    *JointSlot

	// Clock measures request latency. Defaults to timeutil.RealClock.
	Clock timeutil.Clock

	// OnResult, when non-nil, is called after a successful result has been
	// stored in Slot. It runs on the completion goroutine and must not block.
	OnResult func()

	// OnComplete, when non-nil, is called for every completion, success or
	// failure, on the completion goroutine.
	OnComplete func(Completion)
}

// Stats are lifetime counters for a Manager.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Completed uint64
	Failed    uint64
}

// Manager owns the lifecycle of the one in-flight tracking request.
type Manager struct {
	ctx context.Context
	cfg Config

	mu       sync.Mutex
	inflight *request
	last     *request // most recently completed; done closes after its callbacks
	stats    Stats
}

// request owns its reduced buffer from creation until completion.
type request struct {
	id      uuid.UUID
	buf     *depth.Reduced
	started time.Time
	done    chan struct{}
}

// NewManager creates a Manager. ctx is handed to the tracker for every
// request; it should live as long as the pipeline, since in-flight requests
// are never cancelled individually.
func NewManager(ctx context.Context, cfg Config) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Slot == nil {
		cfg.Slot = &JointSlot{}
	}
	return &Manager{ctx: ctx, cfg: cfg}
}

// Slot returns the slot completed joint lists are stored in.
func (m *Manager) Slot() *JointSlot {
	return m.cfg.Slot
}

// Submit reduces f with the given factor and window and hands the result to
// the tracker. The parameters are bound to this request; later changes only
// affect later requests.
//
// When a request is already pending the frame is dropped and Submit returns
// (false, nil). A reduction failure skips tracking for this frame and is
// returned as an error; the manager stays Idle. inspect, when non-nil, sees
// the reduced buffer on the caller's goroutine before the tracker does and
// must not keep it.
func (m *Manager) Submit(f *depth.Frame, factor int, window depth.Window, inspect func(*depth.Reduced)) (bool, error) {
	m.mu.Lock()
	if pending := m.inflight; pending != nil {
		m.stats.Dropped++
		m.mu.Unlock()
		tracef("dropped frame: request %s still pending", pending.id)
		return false, nil
	}
	req := &request{id: uuid.New(), done: make(chan struct{})}
	m.inflight = req
	m.mu.Unlock()

	buf, err := depth.Reduce(f, factor, window)
	if err != nil {
		m.mu.Lock()
		m.inflight = nil
		m.mu.Unlock()
		close(req.done)
		return false, fmt.Errorf("reduce frame: %w", err)
	}

	if inspect != nil {
		inspect(buf)
	}

	req.buf = buf
	req.started = m.cfg.Clock.Now()

	m.mu.Lock()
	m.stats.Submitted++
	m.mu.Unlock()

	tracef("submitting request %s: %dx%d factor=%d window=[%d,%d] cells=%d",
		req.id, buf.Width, buf.Height, factor, window.Begin, window.End, buf.NonZero())

	ch := m.cfg.Tracker.TrackJoints(m.ctx, buf)
	go m.await(req, ch)
	return true, nil
}

func (m *Manager) await(req *request, ch <-chan skeleton.Result) {
	res, ok := <-ch
	switch {
	case !ok:
		res = skeleton.Result{Err: errTrackerClosed}
	case res.Err == nil && res.Joints == nil:
		res.Err = errEmptyResult
	}
	m.complete(req, res)
}

func (m *Manager) complete(req *request, res skeleton.Result) {
	latency := m.cfg.Clock.Since(req.started)

	m.mu.Lock()
	if res.Err != nil {
		m.stats.Failed++
	} else {
		m.stats.Completed++
		m.cfg.Slot.Store(res.Joints)
	}
	if m.inflight == req {
		m.inflight = nil
	}
	m.last = req
	req.buf = nil
	m.mu.Unlock()
	defer close(req.done)

	switch {
	case errors.Is(res.Err, skeleton.ErrNoUser):
		tracef("request %s: no user in view (%v)", req.id, latency)
	case res.Err != nil:
		opsf("[Tracking] request %s failed after %v: %v", req.id, latency, res.Err)
	default:
		tracef("request %s completed in %v with %d joints", req.id, latency, res.Joints.Len())
	}

	if m.cfg.OnComplete != nil {
		m.cfg.OnComplete(Completion{
			ID:      req.id,
			Latency: latency,
			Joints:  res.Joints.Len(),
			Err:     res.Err,
		})
	}
	if res.Err == nil && m.cfg.OnResult != nil {
		m.cfg.OnResult()
	}
}

// Pending reports whether a request is in flight.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight != nil
}

// Wait blocks until no request is in flight and the callbacks of the last
// completion have returned, or until ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	req := m.inflight
	if req == nil {
		req = m.last
	}
	m.mu.Unlock()

	if req == nil {
		return nil
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the manager's lifetime counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
