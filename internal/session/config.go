package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

var (
	// ErrInvalidTargetSpeed is returned for a target speed <= 0
	ErrInvalidTargetSpeed = errors.New("target speed must be positive")
	// ErrNotStarted is returned by operations that need a started run
	ErrNotStarted = errors.New("measurement not started")
	// ErrClosed is returned once the event loop has stopped
	ErrClosed = errors.New("session closed")
)

// Config holds the tunables of a measurement session
type Config struct {
	Filter fix.Filter

	MinStableSpeedKmh float64
	RequiredGoodFixes int

	LatencyCorrectionMs int64
	MultiKmPolicy       split.MultiKmPolicy

	TargetSpeedKmh      int
	GuidanceThresholdMs int64
	GuidanceDisplay     time.Duration

	TickInterval time.Duration

	// ResumeRestabilizes sends a resumed run back through the gate
	// instead of re-anchoring immediately.
	ResumeRestabilizes bool
	// RestartAfterReset re-arms a new run right after Reset.
	RestartAfterReset bool
	// RebaseAfterRejects arms a rebase after this many consecutive
	// too_far, too_fast or multi_boundary rejections: the next fix that is
	// newer than the baseline and accurate enough replaces it without adding
	// distance. 0 disables it.
	RebaseAfterRejects int
}

// DefaultConfig returns the defaults for a road regularity stage
func DefaultConfig() Config {
	return Config{
		Filter:              fix.DefaultFilter(),
		MinStableSpeedKmh:   5,
		RequiredGoodFixes:   3,
		LatencyCorrectionMs: 1000,
		MultiKmPolicy:       split.Interpolate,
		TargetSpeedKmh:      60,
		GuidanceThresholdMs: split.DefaultThresholdMs,
		GuidanceDisplay:     15 * time.Second,
		TickInterval:        time.Second,
		ResumeRestabilizes:  false,
		RestartAfterReset:   true,
		RebaseAfterRejects:  0,
	}
}

// Validate checks the configuration for values the session cannot run with
func (c Config) Validate() error {
	if c.TargetSpeedKmh <= 0 {
		return ErrInvalidTargetSpeed
	}
	if c.RequiredGoodFixes < 1 {
		return fmt.Errorf("required good fixes must be at least 1, got %d", c.RequiredGoodFixes)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.GuidanceDisplay < 0 {
		return fmt.Errorf("guidance display must not be negative, got %s", c.GuidanceDisplay)
	}
	if c.LatencyCorrectionMs < 0 {
		return fmt.Errorf("latency correction must not be negative, got %d", c.LatencyCorrectionMs)
	}
	if _, err := split.ParsePolicy(string(c.MultiKmPolicy)); err != nil {
		return err
	}
	return nil
}
