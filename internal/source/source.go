// Package source feeds fixes into a session from recorded or streamed input.
package source

import (
	"context"
	"errors"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
)

// Sink receives fixes; *session.Session implements it
type Sink interface {
	Push(ctx context.Context, f fix.GeoFix) error
}

// ErrNoPoints is returned when an input holds no usable fixes
var ErrNoPoints = errors.New("no track points found")

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, f fix.GeoFix) error

func (fn SinkFunc) Push(ctx context.Context, f fix.GeoFix) error {
	return fn(ctx, f)
}
