package monitoring

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/depthview/internal/fsutil"
)

// ErrNoSamples is returned when there is nothing to plot.
var ErrNoSamples = errors.New("monitoring: no latency samples")

// RenderReport writes an HTML page with a tracking latency chart and the
// frame counters.
func RenderReport(w io.Writer, s *Stats) error {
	sum := s.Summary()
	samples := s.Samples()

	x := make([]string, 0, len(samples))
	ok := make([]opts.LineData, 0, len(samples))
	for _, smp := range samples {
		x = append(x, fmt.Sprintf("%.2f", smp.At.Seconds()))
		if smp.Failed {
			ok = append(ok, opts.LineData{Value: "-"})
			continue
		}
		ok = append(ok, opts.LineData{Value: float64(smp.Latency) / float64(time.Millisecond)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "depthview tracking", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Tracking latency", Subtitle: sum.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "latency (ms)", NameLocation: "middle", NameGap: 40}),
	)
	line.SetXAxis(x).AddSeries("latency", ok)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Frames", Subtitle: fmt.Sprintf("elapsed %v", sum.Elapsed.Round(time.Millisecond))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis([]string{"Frames", "Submitted", "Dropped", "Completed", "Failed"}).
		AddSeries("counts", []opts.BarData{
			{Value: sum.Frames},
			{Value: sum.Submitted},
			{Value: sum.Dropped},
			{Value: sum.Completed},
			{Value: sum.Failed},
		},
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.AddCharts(line, bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// SaveLatencyPlot writes a PNG line plot of successful request latencies.
func SaveLatencyPlot(fsys fsutil.FileSystem, path string, s *Stats) error {
	samples := s.Samples()
	pts := make(plotter.XYs, 0, len(samples))
	for _, smp := range samples {
		if smp.Failed {
			continue
		}
		pts = append(pts, plotter.XY{X: smp.At.Seconds(), Y: float64(smp.Latency) / float64(time.Millisecond)})
	}
	if len(pts) == 0 {
		return ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = "Tracking latency"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Latency (ms)"

	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.Width = vg.Points(1)
	p.Add(l)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render latency plot: %w", err)
	}
	w, err := fsutil.CreateAll(fsys, path)
	if err != nil {
		return fmt.Errorf("create latency plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		_ = w.Close()
		return fmt.Errorf("write latency plot: %w", err)
	}
	return w.Close()
}
