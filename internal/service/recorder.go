package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dr-Fate/RegularityTracker/internal/analysis"
	"github.com/Dr-Fate/RegularityTracker/internal/export"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/store"
)

// Recorder archives finished runs and writes export files
type Recorder struct {
	store       *store.Store
	exportDir   string
	thresholdMs int64
	now         func() time.Time
	log         *zap.SugaredLogger
}

// NewRecorder creates a recorder. st may be nil when history is disabled.
func NewRecorder(st *store.Store, exportDir string, thresholdMs int64) *Recorder {
	return &Recorder{
		store:       st,
		exportDir:   exportDir,
		thresholdMs: thresholdMs,
		now:         time.Now,
		log:         zap.S().Named("recorder"),
	}
}

// RunSummary is a stored run with its regularity metrics
type RunSummary struct {
	Run        store.Run        `json:"run"`
	Summary    analysis.Summary `json:"summary"`
	Assessment string           `json:"assessment"`
}

// RunFromRecord converts a finished session run into its stored form
func RunFromRecord(rec session.Record) *store.Run {
	run := &store.Run{
		StartedAt:      time.UnixMilli(rec.StartedAt).UTC(),
		EndedAt:        time.UnixMilli(rec.EndedAt).UTC(),
		ElapsedMs:      rec.ElapsedMs,
		DistanceKm:     rec.DistanceKm,
		TargetSpeedKmh: rec.TargetSpeedKmh,
		Splits:         make([]store.Split, len(rec.Splits)),
	}
	for i, ms := range rec.Splits {
		run.Splits[i] = store.Split{Km: i + 1, MeasuredMs: ms}
		if i < len(rec.Ideals) {
			ideal := rec.Ideals[i]
			run.Splits[i].IdealMs = &ideal
		}
	}
	return run
}

// Archive stores a finished run
func (r *Recorder) Archive(ctx context.Context, rec session.Record) (*store.Run, error) {
	if r.store == nil {
		return nil, ErrNoHistory
	}
	run := RunFromRecord(rec)
	if err := r.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("archiving run: %w", err)
	}
	r.log.Infow("run archived", "id", run.ID, "km", len(run.Splits), "elapsed_ms", run.ElapsedMs)
	return run, nil
}

// OnFinish archives rec, logging failures; it fits session.Session.OnFinish
func (r *Recorder) OnFinish(rec session.Record) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ArchiveTimeout)
	defer cancel()
	if _, err := r.Archive(ctx, rec); err != nil {
		r.log.Errorw("failed to archive run", "error", err)
	}
}

// ExportSnapshot writes the splits of a live session to the export directory
func (r *Recorder) ExportSnapshot(snap session.Snapshot) (string, error) {
	path, err := export.WriteFile(r.exportDir, r.now(), snap.Splits, snap.Ideals)
	if err != nil {
		return "", err
	}
	r.log.Infow("exported", "path", path, "km", len(snap.Splits))
	return path, nil
}

// ExportRun writes a stored run to the export directory
func (r *Recorder) ExportRun(ctx context.Context, id string) (string, error) {
	run, err := r.Run(ctx, id)
	if err != nil {
		return "", err
	}
	splits, ideals := run.Times()
	return export.WriteFile(r.exportDir, r.now(), splits, ideals)
}

// Run loads one stored run
func (r *Recorder) Run(ctx context.Context, id string) (*store.Run, error) {
	if r.store == nil {
		return nil, ErrNoHistory
	}
	return r.store.GetRun(ctx, id)
}

// Delete removes one stored run
func (r *Recorder) Delete(ctx context.Context, id string) error {
	if r.store == nil {
		return ErrNoHistory
	}
	return r.store.DeleteRun(ctx, id)
}

// History returns the most recent runs with their regularity metrics
func (r *Recorder) History(ctx context.Context, limit int) ([]RunSummary, error) {
	if r.store == nil {
		return nil, ErrNoHistory
	}
	runs, err := r.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	out := make([]RunSummary, 0, len(runs))
	for _, listed := range runs {
		run, err := r.store.GetRun(ctx, listed.ID)
		if err != nil {
			return nil, fmt.Errorf("loading run %s: %w", listed.ID, err)
		}
		out = append(out, r.summarize(*run))
	}
	return out, nil
}

func (r *Recorder) summarize(run store.Run) RunSummary {
	splits, ideals := run.Times()
	s := analysis.Summarize(splits, ideals, r.thresholdMs)
	return RunSummary{
		Run:        run,
		Summary:    s,
		Assessment: analysis.RegularityAssessment(s.MeanAbsDeviationMs),
	}
}
