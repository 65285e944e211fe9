package session

import (
	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

// Snapshot is a consistent copy of the session state
type Snapshot struct {
	State          State          `json:"state"`
	Running        bool           `json:"running"`
	ElapsedMs      int64          `json:"elapsed_ms"`
	DistanceKm     float64        `json:"distance_km"`
	Splits         []int64        `json:"splits"`
	Ideals         []int64        `json:"ideals"`
	Guidance       split.Guidance `json:"guidance"`
	GuidanceDiffMs int64          `json:"guidance_diff_ms"`
	TargetSpeedKmh int            `json:"target_speed_kmh"`
	StartedAt      int64          `json:"started_at,omitempty"`
	GoodFixes      int            `json:"good_fixes"`
	Satellites     int            `json:"satellites"`
	Accepted       int            `json:"accepted"`
	Rejected       map[string]int `json:"rejected"`
}

// Signal returns the coarse GPS quality of the last fix that reported satellites
func (s Snapshot) Signal() fix.SignalQuality {
	return fix.QualityOf(s.Satellites)
}

// LastSplit returns the most recent split and its ideal
func (s Snapshot) LastSplit() (splitMs, idealMs int64, ok bool) {
	n := len(s.Splits)
	if n == 0 || len(s.Ideals) < n {
		return 0, 0, false
	}
	return s.Splits[n-1], s.Ideals[n-1], true
}
