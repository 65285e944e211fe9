package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Dr-Fate/RegularityTracker/internal/analysis"
	"github.com/Dr-Fate/RegularityTracker/internal/config"
	"github.com/Dr-Fate/RegularityTracker/internal/export"
	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/server"
	"github.com/Dr-Fate/RegularityTracker/internal/service"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/source"
	"github.com/Dr-Fate/RegularityTracker/internal/store"
	"github.com/Dr-Fate/RegularityTracker/internal/stream"
	"github.com/Dr-Fate/RegularityTracker/internal/tui"
)

type options struct {
	configPath string
	gpx        string
	jsonl      string
	realtime   bool
	serve      bool
	tui        bool
	history    bool
}

func main() {
	if err := run(); err != nil {
		zap.S().Fatal(err)
	}
}

func run() error {
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (default ~/.regularity/config.json)")
	flag.StringVar(&opts.gpx, "gpx", "", "replay a recorded GPX track")
	flag.StringVar(&opts.jsonl, "jsonl", "", "read fixes as JSON lines from a file, or - for stdin")
	flag.BoolVar(&opts.realtime, "realtime", false, "replay GPX fixes with their recorded gaps")
	flag.BoolVar(&opts.serve, "serve", false, "serve the HTTP API and live stream")
	flag.BoolVar(&opts.tui, "tui", false, "show the live monitor")
	flag.BoolVar(&opts.history, "history", false, "list finished runs and exit")
	flag.Parse()

	logger, err := newLogger(*level, opts.tui)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.Storage.History {
		st, err = store.Open(cfg.Storage.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer st.Close()
	}
	exportDir := cfg.Storage.ExportDir
	if exportDir == "" {
		exportDir = "."
	}
	rec := service.NewRecorder(st, exportDir, cfg.Pace.GuidanceThresholdMs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.history {
		return printHistory(ctx, os.Stdout, rec)
	}
	if opts.gpx == "" && opts.jsonl == "" && !opts.serve {
		flag.Usage()
		return nil
	}

	sess, err := session.New(cfg.ToSessionConfig(), nil)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	sess.OnFinish = rec.OnFinish
	go func() {
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.S().Errorw("session stopped", "error", err)
		}
	}()
	// Close hands an unfinished run to the archive
	defer sess.Close()

	errc := make(chan error, 2)
	if opts.serve {
		startServer(ctx, cfg, sess, rec, errc)
	}

	var feedDone chan error
	if opts.gpx != "" || opts.jsonl != "" {
		feedDone = make(chan error, 1)
		go func() {
			err := feed(ctx, sess, opts)
			if err != nil && !errors.Is(err, context.Canceled) {
				zap.S().Errorw("fix source stopped", "error", err)
			}
			feedDone <- err
		}()
	}

	switch {
	case opts.tui:
		return runTUI(ctx, sess, rec, cfg.Tracking.RequiredGoodFixes)
	case opts.serve:
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		}
	default:
		select {
		case <-ctx.Done():
			return nil
		case err := <-feedDone:
			if err != nil {
				return err
			}
		}
		if err := sess.Flush(); err != nil {
			return err
		}
		return printResult(os.Stdout, sess.Snapshot(), rec, cfg.Pace.GuidanceThresholdMs)
	}
}

func newLogger(level zapcore.Level, toFile bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if toFile {
		// the monitor owns the terminal
		dir, err := config.GetConfigDir()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		path := filepath.Join(dir, "regularity.log")
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	return cfg.Build()
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if errors.Is(err, config.ErrNoConfig) {
		if path == "" {
			if err := config.CreateExample(); err != nil {
				return nil, fmt.Errorf("creating example config: %w", err)
			}
			dir, _ := config.GetConfigDir()
			zap.S().Infow("created default config", "path", filepath.Join(dir, "config.json"))
		}
		defaults := config.DefaultConfig()
		cfg, err = &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func startServer(ctx context.Context, cfg *config.Config, sess *session.Session, rec *service.Recorder, errc chan<- error) {
	rdb := stream.ConnectRedis(cfg.Server.RedisAddr, cfg.Server.RedisPassword)
	hub := stream.NewHub(rdb)
	if rdb != nil {
		go func() {
			defer rdb.Close()
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zap.S().Errorw("redis relay stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(cfg.Server, sess, rec, hub)
	go func() {
		if err := srv.Run(ctx); err != nil {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
}

// feed starts the measurement and pushes the configured fix source into it
func feed(ctx context.Context, sess *session.Session, opts options) error {
	if err := sess.Start(); err != nil {
		return err
	}

	if opts.gpx != "" {
		doc, err := source.ParseGPXFile(opts.gpx)
		if err != nil {
			return err
		}
		fixes, err := doc.Fixes()
		if err != nil {
			return err
		}
		_, err = source.Replay(ctx, fixes, sess, source.ReplayOptions{
			Realtime: opts.realtime,
			RebaseTo: rebaseTarget(fixes, opts.realtime, time.Now()),
		})
		return err
	}

	r := io.Reader(os.Stdin)
	if opts.jsonl != "-" {
		f, err := os.Open(opts.jsonl)
		if err != nil {
			return fmt.Errorf("opening fixes: %w", err)
		}
		defer f.Close()
		r = f
	}
	_, err := source.ReadJSONL(ctx, r, sess)
	return err
}

// rebaseTarget moves a recording onto the session clock: a realtime replay
// starts now, a fast replay ends now
func rebaseTarget(fixes []fix.GeoFix, realtime bool, now time.Time) int64 {
	if realtime || len(fixes) == 0 {
		return now.UnixMilli()
	}
	return now.UnixMilli() - (fixes[len(fixes)-1].Timestamp - fixes[0].Timestamp)
}

func runTUI(ctx context.Context, sess *session.Session, rec *service.Recorder, requiredFixes int) error {
	snaps, cancel := sess.Subscribe()
	defer cancel()

	app := tui.NewApp(sess, snaps, rec, requiredFixes)
	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

func printResult(w io.Writer, snap session.Snapshot, rec *service.Recorder, thresholdMs int64) error {
	if len(snap.Splits) == 0 {
		fmt.Fprintf(w, "No kilometers measured (state %s, %.2f km)\n", snap.State, snap.DistanceKm)
		return nil
	}

	fmt.Fprintln(w, export.Table(snap.Splits, snap.Ideals))
	fmt.Fprintln(w)

	s := analysis.Summarize(snap.Splits, snap.Ideals, thresholdMs)
	fmt.Fprintf(w, "%d km at %d km/h target, average %.1f km/h\n", s.Kilometers, snap.TargetSpeedKmh, s.AverageSpeedKmh)
	fmt.Fprintf(w, "Mean deviation %.1fs, worst %.1fs at km %d, %.0f%% on pace\n",
		s.MeanAbsDeviationMs/1000, float64(s.MaxAbsDeviationMs)/1000, s.WorstKm, s.OnPacePct)
	fmt.Fprintf(w, "Regularity: %s\n", analysis.RegularityAssessment(s.MeanAbsDeviationMs))

	path, err := rec.ExportSnapshot(snap)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	fmt.Fprintf(w, "Exported to %s\n", path)
	return nil
}

func printHistory(ctx context.Context, w io.Writer, rec *service.Recorder) error {
	runs, err := rec.History(ctx, service.HistoryLimit)
	if errors.Is(err, service.ErrNoHistory) {
		fmt.Fprintln(w, "Run history is disabled (storage.history in the config)")
		return nil
	}
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No finished runs yet")
		return nil
	}

	for _, rs := range runs {
		id := rs.Run.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "%s  %-16s  %3d km  %s  %3d km/h  ±%.1fs  %s\n",
			id,
			humanize.Time(rs.Run.StartedAt),
			rs.Summary.Kilometers,
			export.FormatClock(rs.Run.ElapsedMs),
			rs.Run.TargetSpeedKmh,
			rs.Summary.MeanAbsDeviationMs/1000,
			rs.Assessment,
		)
	}
	return nil
}
