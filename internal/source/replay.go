package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
)

// ReplayOptions controls how recorded fixes are fed to a sink
type ReplayOptions struct {
	// Realtime waits between fixes for the recorded gap
	Realtime bool
	// RebaseTo shifts timestamps so the first fix lands on this ms value.
	// Zero keeps the recorded timestamps.
	RebaseTo int64
}

// Replay pushes fixes into sink in order and returns how many were pushed
func Replay(ctx context.Context, fixes []fix.GeoFix, sink Sink, opts ReplayOptions) (int, error) {
	if len(fixes) == 0 {
		return 0, ErrNoPoints
	}
	log := zap.S().Named("replay")

	var shift int64
	if opts.RebaseTo != 0 {
		shift = opts.RebaseTo - fixes[0].Timestamp
	}
	log.Infow("replay started", "fixes", len(fixes), "realtime", opts.Realtime)

	for i, f := range fixes {
		if opts.Realtime && i > 0 {
			gap := time.Duration(f.Timestamp-fixes[i-1].Timestamp) * time.Millisecond
			if err := sleep(ctx, gap); err != nil {
				return i, err
			}
		}
		f.Timestamp += shift
		if err := sink.Push(ctx, f); err != nil {
			return i, err
		}
	}

	log.Infow("replay finished", "fixes", len(fixes))
	return len(fixes), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
