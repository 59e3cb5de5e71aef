// Command depthview runs the depth camera viewer: it streams frame sets,
// overlays the thresholded depth map, tracks a skeleton asynchronously and
// accepts key commands on stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/depthview/internal/config"
	"github.com/banshee-data/depthview/internal/control"
	"github.com/banshee-data/depthview/internal/depth"
	"github.com/banshee-data/depthview/internal/display"
	"github.com/banshee-data/depthview/internal/fsutil"
	"github.com/banshee-data/depthview/internal/monitoring"
	"github.com/banshee-data/depthview/internal/pipeline"
	"github.com/banshee-data/depthview/internal/security"
	"github.com/banshee-data/depthview/internal/skeleton"
	"github.com/banshee-data/depthview/internal/source"
	"github.com/banshee-data/depthview/internal/tracking"
	"github.com/banshee-data/depthview/internal/version"
)

type options struct {
	ConfigPath    string
	Pipeline      string
	SnapshotDir   string
	SnapshotEvery int
	Frames        uint64
	LogLevel      string
	ReportPath    string
	PlotPath      string
	Seed          int64
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "depthview [serial]",
		Short:         "Depth camera viewer with asynchronous skeleton tracking",
		Version:       version.String(),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			serial := ""
			if len(args) == 1 {
				serial = args[0]
			}
			return run(cmd.Context(), opts, serial, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to a JSON viewer config (default: built-in defaults)")
	f.StringVar(&opts.Pipeline, "pipeline", "cpu", "Packet pipeline: cpu, gl or cl")
	f.StringVar(&opts.SnapshotDir, "snapshot-dir", "", "Directory for PNG snapshots (overrides config)")
	f.IntVar(&opts.SnapshotEvery, "snapshot-every", -1, "Write a snapshot every N frames; 0 disables (overrides config)")
	f.Uint64Var(&opts.Frames, "frames", 0, "Stop after N frames; 0 runs until interrupted")
	f.StringVar(&opts.LogLevel, "log-level", "ops", "Log streams to enable: ops, diag or trace")
	f.StringVar(&opts.ReportPath, "report", "", "Write an HTML latency report here on exit")
	f.StringVar(&opts.PlotPath, "latency-plot", "", "Write a PNG latency plot here on exit")
	f.Int64Var(&opts.Seed, "seed", 1, "Noise seed for the synthetic sensor")
	return cmd
}

// logWriters maps a level name to the enabled streams. Each level includes
// the ones below it.
func logWriters(level string, w io.Writer) (ops, diag, trace io.Writer, err error) {
	switch strings.ToLower(level) {
	case "ops", "":
		return w, nil, nil, nil
	case "diag":
		return w, w, nil, nil
	case "trace":
		return w, w, w, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown log level %q: want ops, diag or trace", level)
}

func setLogWriters(ops, diag, trace io.Writer) {
	depth.SetLogWriters(ops, diag, trace)
	skeleton.SetLogWriters(ops, diag, trace)
	tracking.SetLogWriters(ops, diag, trace)
	control.SetLogWriters(ops, diag, trace)
	display.SetLogWriters(ops, diag, trace)
	pipeline.SetLogWriters(ops, diag, trace)

	if diag != nil {
		monitoring.SetLogger(log.New(diag, "[monitoring] ", log.LstdFlags|log.Lmicroseconds).Printf)
	} else {
		monitoring.SetLogger(nil)
	}
}

func loadConfig(path string) (*config.ViewerConfig, error) {
	if path == "" {
		return config.EmptyViewerConfig(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, opts options, serial string, stdin io.Reader, stdout, stderr io.Writer) error {
	ops, diag, trace, err := logWriters(opts.LogLevel, stderr)
	if err != nil {
		return err
	}
	setLogWriters(ops, diag, trace)

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pl, err := source.ParsePipeline(opts.Pipeline)
	if err != nil {
		return err
	}

	snapDir := cfg.GetSnapshotDir()
	if opts.SnapshotDir != "" {
		snapDir = opts.SnapshotDir
	}
	snapEvery := cfg.GetSnapshotEvery()
	if opts.SnapshotEvery >= 0 {
		snapEvery = opts.SnapshotEvery
	}

	for _, out := range []struct {
		path string
		on   bool
	}{
		{snapDir, snapEvery > 0},
		{opts.ReportPath, opts.ReportPath != ""},
		{opts.PlotPath, opts.PlotPath != ""},
	} {
		if !out.on {
			continue
		}
		if err := security.ValidateOutputPath(out.path); err != nil {
			return err
		}
	}

	sc := source.DefaultSyntheticConfig()
	if serial != "" {
		sc.Serial = serial
	}
	sc.Pipeline = pl
	sc.DepthWidth = cfg.GetWidth()
	sc.DepthHeight = cfg.GetHeight()
	sc.FrameRate = cfg.GetFrameRate()
	sc.Timeout = cfg.GetFrameTimeout()
	sc.Seed = opts.Seed
	src := source.NewSynthetic(sc, nil)

	fsys := fsutil.OSFileSystem{}
	disp, err := display.NewHeadless(display.Config{
		Width:         cfg.GetWidth(),
		Height:        cfg.GetHeight(),
		FS:            fsys,
		Dir:           snapDir,
		SnapshotEvery: snapEvery,
	})
	if err != nil {
		return fmt.Errorf("create display: %w", err)
	}

	tracker := skeleton.NewExtremaTracker()
	defer tracker.Wait()

	info := src.Info()
	fmt.Fprint(stdout, control.Instructions)
	fmt.Fprintf(stdout, "Device serial: %s\nDevice firmware: %s\nPacket pipeline: %s\n", info.Serial, info.Firmware, info.Pipeline)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt := pipeline.NewRuntime(runCtx, cfg.Params(tracker.Options()), src, disp, tracker, nil)
	pump := pipeline.NewPump(rt, pipeline.PumpConfig{
		FrameRate:     cfg.GetFrameRate(),
		FrameTimeout:  cfg.GetFrameTimeout(),
		StatsInterval: cfg.GetStatsInterval(),
		MaxFrames:     opts.Frames,
	})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer cancel()
		return pump.Run(gctx)
	})
	g.Go(func() error {
		readKeys(gctx, stdin, pump, cancel)
		return nil
	})
	runErr := g.Wait()
	tracker.Wait()

	sum := rt.Stats.Summary()
	fmt.Fprintf(stdout, "%s\n", sum)
	if err := writeOutputs(fsys, opts, rt.Stats); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// readKeys forwards one command per stdin line to the pump until ctx is
// done. "q" cancels the run. End of input leaves the viewer running.
func readKeys(ctx context.Context, r io.Reader, pump *pipeline.Pump, quit context.CancelFunc) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.EqualFold(strings.TrimSpace(line), "q") {
				quit()
				return
			}
			k, ok := control.ParseKey(line)
			if !ok {
				if strings.TrimSpace(line) != "" {
					log.Printf("unknown key %q", line)
				}
				continue
			}
			pump.Send(k)
		}
	}
}

func writeOutputs(fsys fsutil.FileSystem, opts options, stats *monitoring.Stats) error {
	if opts.ReportPath != "" {
		w, err := fsutil.CreateAll(fsys, opts.ReportPath)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		err = monitoring.RenderReport(w, stats)
		if cerr := w.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if opts.PlotPath != "" {
		err := monitoring.SaveLatencyPlot(fsys, opts.PlotPath, stats)
		switch {
		case errors.Is(err, monitoring.ErrNoSamples):
			log.Printf("no tracking latencies recorded; skipping %s", opts.PlotPath)
		case err != nil:
			return fmt.Errorf("write latency plot: %w", err)
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
