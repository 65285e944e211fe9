package analysis

import "math"

// Summary holds the regularity metrics of a finished or running measurement
type Summary struct {
	Kilometers         int     `json:"kilometers"`
	LapMs              []int64 `json:"lap_ms"`                // time spent on each kilometer
	AverageSpeedKmh    float64 `json:"average_speed_kmh"`     // over the measured kilometers
	MeanAbsDeviationMs float64 `json:"mean_abs_deviation_ms"` // mean |split - ideal|
	MaxAbsDeviationMs  int64   `json:"max_abs_deviation_ms"`
	WorstKm            int     `json:"worst_km"`      // 1-based, 0 when there are no ideals
	OnPacePct          float64 `json:"on_pace_pct"`   // kilometers within the threshold
	LapSpreadMs        int64   `json:"lap_spread_ms"` // slowest lap minus fastest lap
}

// Summarize computes regularity metrics from parallel split and ideal times.
// Splits without an ideal count for laps and speed only.
func Summarize(splits, ideals []int64, thresholdMs int64) Summary {
	s := Summary{Kilometers: len(splits)}
	if len(splits) == 0 {
		return s
	}

	s.LapMs = make([]int64, len(splits))
	var prev int64
	fastest, slowest := int64(math.MaxInt64), int64(0)
	for i, split := range splits {
		lap := split - prev
		s.LapMs[i] = lap
		prev = split
		if lap < fastest {
			fastest = lap
		}
		if lap > slowest {
			slowest = lap
		}
	}
	s.LapSpreadMs = slowest - fastest

	if last := splits[len(splits)-1]; last > 0 {
		s.AverageSpeedKmh = float64(len(splits)) * 3_600_000 / float64(last)
	}

	n := len(ideals)
	if n > len(splits) {
		n = len(splits)
	}
	if n == 0 {
		return s
	}

	var total float64
	onPace := 0
	for i := 0; i < n; i++ {
		dev := splits[i] - ideals[i]
		if dev < 0 {
			dev = -dev
		}
		total += float64(dev)
		if dev > s.MaxAbsDeviationMs || s.WorstKm == 0 {
			s.MaxAbsDeviationMs = dev
			s.WorstKm = i + 1
		}
		if dev <= thresholdMs {
			onPace++
		}
	}
	s.MeanAbsDeviationMs = total / float64(n)
	s.OnPacePct = float64(onPace) / float64(n) * 100

	return s
}

// RegularityAssessment returns a human-readable rating of the mean deviation
func RegularityAssessment(meanAbsDeviationMs float64) string {
	switch {
	case meanAbsDeviationMs < 500:
		return "Excelente"
	case meanAbsDeviationMs < 1000:
		return "Muy buena"
	case meanAbsDeviationMs < 3000:
		return "Buena"
	case meanAbsDeviationMs < 10000:
		return "Irregular"
	default:
		return "Fuera de ritmo"
	}
}
