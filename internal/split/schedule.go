package split

import (
	"errors"
	"math"
)

// ErrInvalidSpeed is returned for a non-positive target speed
var ErrInvalidSpeed = errors.New("target speed must be positive")

const msPerHour = 3_600_000

// Schedule computes ideal elapsed times for a constant target speed
type Schedule struct {
	SpeedKmh int
}

// NewSchedule creates a schedule for speedKmh
func NewSchedule(speedKmh int) (Schedule, error) {
	if speedKmh <= 0 {
		return Schedule{}, ErrInvalidSpeed
	}
	return Schedule{SpeedKmh: speedKmh}, nil
}

// Ideal returns the target elapsed milliseconds at kilometer km
func (s Schedule) Ideal(km int) int64 {
	if s.SpeedKmh <= 0 {
		return 0
	}
	return int64(math.Round(float64(km) * msPerHour / float64(s.SpeedKmh)))
}

// Times returns the ideal times for kilometers 1..n
func (s Schedule) Times(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = s.Ideal(i + 1)
	}
	return out
}
