package session

import "time"

// Clock supplies wall-clock time and timers to the session
type Clock interface {
	// Now returns milliseconds since the Unix epoch
	Now() int64
	// AfterFunc calls f once after d; stop cancels it if it has not run
	AfterFunc(d time.Duration, f func()) (stop func() bool)
	// Tick delivers a value every d until stop is called
	Tick(d time.Duration) (c <-chan time.Time, stop func())
}

// SystemClock is the real clock
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

func (SystemClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

func (SystemClock) Tick(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}
