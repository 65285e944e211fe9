package store

import "time"

// Run is a finished measurement
type Run struct {
	ID             string    `db:"id" json:"id"`
	StartedAt      time.Time `db:"started_at" json:"started_at"`
	EndedAt        time.Time `db:"ended_at" json:"ended_at"`
	ElapsedMs      int64     `db:"elapsed_ms" json:"elapsed_ms"`
	DistanceKm     float64   `db:"distance_km" json:"distance_km"`
	TargetSpeedKmh int       `db:"target_speed_kmh" json:"target_speed_kmh"`
	Splits         []Split   `db:"-" json:"splits,omitempty"`
}

// Split is one kilometer of a run
type Split struct {
	Km         int    `db:"km" json:"km"`
	MeasuredMs int64  `db:"measured_ms" json:"measured_ms"`
	IdealMs    *int64 `db:"ideal_ms" json:"ideal_ms"` // nullable
}

// Times returns the measured and ideal times as parallel slices, the shape
// the export table expects. Ideals stop at the first missing value.
func (r *Run) Times() (splits, ideals []int64) {
	splits = make([]int64, len(r.Splits))
	ideals = make([]int64, 0, len(r.Splits))
	missing := false
	for i, s := range r.Splits {
		splits[i] = s.MeasuredMs
		if s.IdealMs == nil {
			missing = true
		}
		if !missing {
			ideals = append(ideals, *s.IdealMs)
		}
	}
	return splits, ideals
}
