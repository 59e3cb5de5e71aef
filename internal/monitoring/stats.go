package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/depthview/internal/timeutil"
)

// DefaultMaxSamples bounds the completion history kept for latency
// statistics and charts.
const DefaultMaxSamples = 10000

// Sample is one completed tracking request.
type Sample struct {
	At      time.Duration // since the Stats were created
	Latency time.Duration
	Failed  bool
}

// Stats collects frame and tracking counters for the running pipeline.
// It is safe for concurrent use: frames are recorded by the display
// goroutine, completions by the tracking manager.
type Stats struct {
	clock timeutil.Clock
	start time.Time

	mu         sync.Mutex
	frames     uint64
	submitted  uint64
	completed  uint64
	failed     uint64
	samples    []Sample
	maxSamples int
}

// NewStats creates an empty collector. A nil clock uses the real clock.
func NewStats(clock timeutil.Clock) *Stats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Stats{clock: clock, start: clock.Now(), maxSamples: DefaultMaxSamples}
}

// RecordFrame counts one displayed frame and whether it was submitted for
// tracking.
func (s *Stats) RecordFrame(submitted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if submitted {
		s.submitted++
	}
}

// ObserveCompletion records a finished tracking request.
func (s *Stats) ObserveCompletion(latency time.Duration, err error) {
	at := s.clock.Since(s.start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
	} else {
		s.completed++
	}
	s.samples = append(s.samples, Sample{At: at, Latency: latency, Failed: err != nil})
	if over := len(s.samples) - s.maxSamples; over > 0 {
		s.samples = append(s.samples[:0], s.samples[over:]...)
	}
}

// Samples returns a copy of the retained completion history, oldest first.
func (s *Stats) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}

// Summary is a point-in-time view of Stats.
type Summary struct {
	Elapsed   time.Duration
	Frames    uint64
	Submitted uint64
	Dropped   uint64
	Completed uint64
	Failed    uint64
	FPS       float64

	// Latency figures cover retained successful completions only.
	MeanLatency   time.Duration
	StdDevLatency time.Duration
	P95Latency    time.Duration
	MaxLatency    time.Duration
}

// Summary computes the current summary.
func (s *Stats) Summary() Summary {
	elapsed := s.clock.Since(s.start)

	s.mu.Lock()
	sum := Summary{
		Elapsed:   elapsed,
		Frames:    s.frames,
		Submitted: s.submitted,
		Dropped:   s.frames - s.submitted,
		Completed: s.completed,
		Failed:    s.failed,
	}
	ms := make([]float64, 0, len(s.samples))
	for _, smp := range s.samples {
		if !smp.Failed {
			ms = append(ms, float64(smp.Latency)/float64(time.Millisecond))
		}
	}
	s.mu.Unlock()

	if elapsed > 0 {
		sum.FPS = float64(sum.Frames) / elapsed.Seconds()
	}
	if len(ms) == 0 {
		return sum
	}

	sort.Float64s(ms)
	mean, std := stat.MeanStdDev(ms, nil)
	if len(ms) < 2 {
		std = 0
	}
	sum.MeanLatency = fromMillis(mean)
	sum.StdDevLatency = fromMillis(std)
	sum.P95Latency = fromMillis(stat.Quantile(0.95, stat.Empirical, ms, nil))
	sum.MaxLatency = fromMillis(ms[len(ms)-1])
	return sum
}

func fromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// String formats the summary as a single log line.
func (s Summary) String() string {
	return fmt.Sprintf("frames=%d fps=%.1f submitted=%d dropped=%d completed=%d failed=%d latency mean=%v sd=%v p95=%v max=%v",
		s.Frames, s.FPS, s.Submitted, s.Dropped, s.Completed, s.Failed,
		s.MeanLatency.Round(time.Microsecond), s.StdDevLatency.Round(time.Microsecond),
		s.P95Latency.Round(time.Microsecond), s.MaxLatency.Round(time.Microsecond))
}

// Report logs the current summary through Logf.
func (s *Stats) Report() {
	Logf("[Stats] %s", s.Summary())
}
