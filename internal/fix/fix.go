package fix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Dr-Fate/RegularityTracker/internal/geo"
)

// MsToKmh converts meters per second to kilometers per hour
const MsToKmh = 3.6

// Accuracy is an optional horizontal accuracy in meters.
// The zero value means the source did not report one.
type Accuracy struct {
	Meters float64
	Known  bool
}

// AccuracyOf returns a known accuracy of m meters
func AccuracyOf(m float64) Accuracy {
	return Accuracy{Meters: m, Known: true}
}

// Within reports whether the accuracy is unknown or no worse than limit
func (a Accuracy) Within(limit float64) bool {
	return !a.Known || a.Meters <= limit
}

func (a Accuracy) String() string {
	if !a.Known {
		return "unknown"
	}
	return fmt.Sprintf("%.1fm", a.Meters)
}

// MarshalJSON encodes an unknown accuracy as null
func (a Accuracy) MarshalJSON() ([]byte, error) {
	if !a.Known {
		return []byte("null"), nil
	}
	return json.Marshal(a.Meters)
}

// UnmarshalJSON decodes null (or a missing field) as unknown
func (a *Accuracy) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = Accuracy{}
		return nil
	}
	var m float64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("accuracy: %w", err)
	}
	*a = AccuracyOf(m)
	return nil
}

// GeoFix is one reading from the location source
type GeoFix struct {
	Timestamp            int64    `json:"timestamp"`  // ms since epoch
	DistanceFromPrevious float64  `json:"distance_m"` // meters from the source's previous fix
	Speed                float64  `json:"speed_mps"`  // m/s, zero when not reported
	Accuracy             Accuracy `json:"accuracy_m"`

	// Optional raw position. When both fixes carry one, the distance between
	// them is recomputed instead of trusting DistanceFromPrevious.
	Lat         float64 `json:"lat,omitempty"`
	Lon         float64 `json:"lon,omitempty"`
	HasPosition bool    `json:"has_position,omitempty"`

	Satellites int `json:"satellites,omitempty"` // used in fix, 0 = unknown
}

// SpeedKmh returns the reported instantaneous speed in km/h
func (f GeoFix) SpeedKmh() float64 {
	return f.Speed * MsToKmh
}

// Delta returns the distance in meters between the previous accepted fix and next
func Delta(prev, next GeoFix) float64 {
	if prev.HasPosition && next.HasPosition {
		return geo.DistanceM(prev.Lat, prev.Lon, next.Lat, next.Lon)
	}
	return next.DistanceFromPrevious
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
