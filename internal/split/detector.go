package split

import (
	"fmt"
	"math"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
)

// MultiKmPolicy decides what happens when one fix interval spans more than
// one kilometer boundary
type MultiKmPolicy string

const (
	// Interpolate records every crossed boundary, one kilometer at a time
	Interpolate MultiKmPolicy = "interpolate"
	// Reject drops the fix so the next interval can be measured normally
	Reject MultiKmPolicy = "reject"
)

// ParsePolicy validates a policy name; empty means Interpolate
func ParsePolicy(s string) (MultiKmPolicy, error) {
	switch MultiKmPolicy(s) {
	case "", Interpolate:
		return Interpolate, nil
	case Reject:
		return Reject, nil
	default:
		return "", fmt.Errorf("unknown multi-km policy %q", s)
	}
}

// Accumulator is the running distance of accepted fixes
type Accumulator struct {
	km float64
}

// Km returns the accumulated distance in kilometers
func (a *Accumulator) Km() float64 {
	return a.km
}

// Peek returns the distance that adding meters would produce, without committing
func (a *Accumulator) Peek(meters float64) (before, after float64) {
	if meters < 0 {
		meters = 0
	}
	return a.km, a.km + meters/1000
}

// Add commits meters and returns the distance before and after
func (a *Accumulator) Add(meters float64) (before, after float64) {
	before, after = a.Peek(meters)
	a.km = after
	return before, after
}

// Reset zeroes the distance
func (a *Accumulator) Reset() {
	a.km = 0
}

// Crossing is one interpolated kilometer boundary
type Crossing struct {
	Km        int     // boundary index, 1-based
	Timestamp float64 // interpolated ms since epoch
	Elapsed   int64   // ms since run start, latency corrected
}

// Detector finds kilometer crossings between two accepted fixes
type Detector struct {
	LatencyCorrectionMs int64
	Policy              MultiKmPolicy
}

// Boundaries returns how many whole kilometers lie between before and after
func Boundaries(before, after float64) int {
	n := int(math.Floor(after)) - int(math.Floor(before))
	if n < 0 {
		return 0
	}
	return n
}

// Allows reports whether an interval from before to after is acceptable under the policy
func (d Detector) Allows(before, after float64) bool {
	return d.Policy != Reject || Boundaries(before, after) <= 1
}

// Detect returns the crossings in the interval prev→cur that are above recordedKm.
// startMs is the run's start wall clock.
func (d Detector) Detect(prev, cur fix.GeoFix, before, after float64, startMs int64, recordedKm int) []Crossing {
	span := after - before
	if span <= 0 {
		return nil
	}

	first := int(math.Floor(before)) + 1
	if first <= recordedKm {
		first = recordedKm + 1
	}
	last := int(math.Floor(after))

	var out []Crossing
	dt := float64(cur.Timestamp - prev.Timestamp)
	for k := first; k <= last; k++ {
		fraction := (float64(k) - before) / span
		ts := float64(prev.Timestamp) + fraction*dt
		out = append(out, Crossing{
			Km:        k,
			Timestamp: ts,
			Elapsed:   int64(math.Round(ts)) - startMs - d.LatencyCorrectionMs,
		})
	}
	return out
}
