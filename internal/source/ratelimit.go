package source

import (
	"sync"
	"time"
)

// RateLimiter caps how fast an external client may push fixes.
// A GPS receiver reports about once per second; anything far above that is
// a misbehaving client.
type RateLimiter struct {
	mu sync.Mutex

	// one-minute window
	limit    int
	usage    int
	resetsAt time.Time

	// minimum interval between fixes
	minInterval time.Duration
	lastFix     time.Time
}

// NewRateLimiter allows perMinute fixes per minute, at least minInterval apart
func NewRateLimiter(perMinute int, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:       perMinute,
		resetsAt:    time.Now().Add(time.Minute),
		minInterval: minInterval,
	}
}

// Allow records a fix arriving at now and reports whether it is within limits
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.After(r.resetsAt) {
		r.usage = 0
		r.resetsAt = now.Add(time.Minute)
	}
	if r.limit > 0 && r.usage >= r.limit {
		return false
	}
	if !r.lastFix.IsZero() && now.Sub(r.lastFix) < r.minInterval {
		return false
	}

	r.usage++
	r.lastFix = now
	return true
}

// Remaining returns how many fixes the current window still accepts
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.limit - r.usage
}
