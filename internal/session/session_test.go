package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

// fakeClock is a manually advanced Clock. Its ticker never fires on its own;
// tests call Session.Tick instead.
type fakeClock struct {
	mu      sync.Mutex
	now     int64
	timers  []*fakeTimer
	tickers int
}

type fakeTimer struct {
	at      int64
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now int64) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
	c.fireDue()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d.Milliseconds()
	c.mu.Unlock()
	c.fireDue()
}

func (c *fakeClock) fireDue() {
	c.mu.Lock()
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now + d.Milliseconds(), f: f}
	c.timers = append(c.timers, t)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

func (c *fakeClock) Tick(time.Duration) (<-chan time.Time, func()) {
	c.mu.Lock()
	c.tickers++
	c.mu.Unlock()
	return nil, func() {
		c.mu.Lock()
		c.tickers--
		c.mu.Unlock()
	}
}

func (c *fakeClock) activeTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers
}

const t0 = 1_000_000

func newTestSession(t *testing.T, cfg Config) (*Session, *fakeClock) {
	t.Helper()
	clk := newFakeClock(t0)
	s, err := New(cfg, clk)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s, clk
}

// flush waits until every queued event has been handled
func flush(t *testing.T, s *Session) {
	t.Helper()
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func push(t *testing.T, s *Session, clk *fakeClock, f fix.GeoFix) {
	t.Helper()
	clk.Set(f.Timestamp)
	if err := s.Push(context.Background(), f); err != nil {
		t.Fatalf("Push: %v", err)
	}
}

// good returns a fix at 72 km/h covering 20m since the previous one
func good(ts int64) fix.GeoFix {
	return fix.GeoFix{Timestamp: ts, DistanceFromPrevious: 20, Speed: 20, Accuracy: fix.AccuracyOf(5)}
}

// startRunning starts a session and stabilizes it; the run starts at the
// returned timestamp
func startRunning(t *testing.T, s *Session, clk *fakeClock) int64 {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	var ts int64
	for i := 1; i <= s.Config().RequiredGoodFixes; i++ {
		ts = t0 + int64(i)*1000
		push(t, s, clk, good(ts))
	}
	flush(t, s)
	if st := s.Snapshot().State; st != Running {
		t.Fatalf("State = %v, want running", st)
	}
	return ts
}

func interpolationConfig() Config {
	cfg := DefaultConfig()
	cfg.RequiredGoodFixes = 1
	cfg.Filter = fix.Filter{MaxAccuracyM: 25, MaxSpeedKmh: 1000, MaxDistanceM: 2000}
	return cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetSpeedKmh = 0
	if _, err := New(cfg, nil); !errors.Is(err, ErrInvalidTargetSpeed) {
		t.Errorf("New() err = %v, want ErrInvalidTargetSpeed", err)
	}

	cfg = DefaultConfig()
	cfg.MultiKmPolicy = "sometimes"
	if _, err := New(cfg, nil); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestStabilizationGate(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.Snapshot().State; got != Stabilizing {
		t.Fatalf("State = %v, want stabilizing", got)
	}

	push(t, s, clk, good(t0+1000))
	push(t, s, clk, good(t0+2000))
	stopped := good(t0 + 3000)
	stopped.Speed = 0.2
	push(t, s, clk, stopped)
	flush(t, s)

	snap := s.Snapshot()
	if snap.State != Stabilizing || snap.StartedAt != 0 {
		t.Fatalf("started after a bad fix: %+v", snap)
	}

	for i := int64(4); i <= 6; i++ {
		push(t, s, clk, good(t0+i*1000))
	}
	flush(t, s)

	snap = s.Snapshot()
	if snap.State != Running {
		t.Fatalf("State = %v, want running", snap.State)
	}
	if snap.StartedAt != t0+6000 {
		t.Errorf("StartedAt = %d, want %d", snap.StartedAt, t0+6000)
	}
	if snap.DistanceKm != 0 {
		t.Errorf("DistanceKm = %v, want 0 at start", snap.DistanceKm)
	}
	if clk.activeTickers() != 1 {
		t.Errorf("active tickers = %d, want 1", clk.activeTickers())
	}
}

func TestInterpolatedSplit(t *testing.T) {
	s, clk := newTestSession(t, interpolationConfig())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	push(t, s, clk, fix.GeoFix{Timestamp: t0, Speed: 10})
	push(t, s, clk, fix.GeoFix{Timestamp: t0 + 6000, DistanceFromPrevious: 1200, Speed: 10})
	flush(t, s)

	snap := s.Snapshot()
	if diff := cmp.Diff([]int64{4000}, snap.Splits); diff != "" {
		t.Errorf("Splits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{60_000}, snap.Ideals); diff != "" {
		t.Errorf("Ideals mismatch (-want +got):\n%s", diff)
	}
	if snap.DistanceKm < 1.19 || snap.DistanceKm > 1.21 {
		t.Errorf("DistanceKm = %v, want 1.2", snap.DistanceKm)
	}
	if snap.Guidance != split.Decelerate || snap.GuidanceDiffMs != 56_000 {
		t.Errorf("Guidance = %v (%d), want decelerate (56000)", snap.Guidance, snap.GuidanceDiffMs)
	}
}

func TestPauseResumeElapsed(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	start := startRunning(t, s, clk)

	clk.Set(start + 12345)
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := s.Snapshot().ElapsedMs; got != 12345 {
		t.Fatalf("ElapsedMs after pause = %d, want 12345", got)
	}
	if clk.activeTickers() != 0 {
		t.Errorf("ticker still active after Pause returned")
	}

	clk.Advance(5 * time.Second)
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := s.Snapshot().ElapsedMs; got != 12345 {
		t.Errorf("ElapsedMs moved while paused: %d", got)
	}

	// late fixes are dropped while paused
	push(t, s, clk, good(clk.Now()))
	flush(t, s)
	if got := s.Snapshot().Accepted; got != 3 {
		t.Errorf("Accepted = %d, want 3", got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	clk.Advance(time.Second)
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	snap := s.Snapshot()
	if snap.ElapsedMs != 13345 {
		t.Errorf("ElapsedMs = %d, want 13345", snap.ElapsedMs)
	}
	if snap.State != Running {
		t.Errorf("State = %v, want running", snap.State)
	}
}

func TestResumeRestabilizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResumeRestabilizes = true
	s, clk := newTestSession(t, cfg)
	start := startRunning(t, s, clk)

	for i := int64(1); i <= 10; i++ {
		push(t, s, clk, good(start+i*1000))
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	paused := s.Snapshot()
	if paused.ElapsedMs != 10_000 {
		t.Fatalf("ElapsedMs = %d, want 10000", paused.ElapsedMs)
	}

	clk.Advance(30 * time.Second)
	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := s.Snapshot().State; got != Stabilizing {
		t.Fatalf("State = %v, want stabilizing", got)
	}

	base := clk.Now()
	for i := int64(1); i <= 3; i++ {
		push(t, s, clk, good(base+i*1000))
	}
	flush(t, s)

	snap := s.Snapshot()
	if snap.State != Running {
		t.Fatalf("State = %v, want running", snap.State)
	}
	if snap.DistanceKm != paused.DistanceKm {
		t.Errorf("DistanceKm = %v, want %v preserved", snap.DistanceKm, paused.DistanceKm)
	}

	clk.Advance(2 * time.Second)
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := s.Snapshot().ElapsedMs; got != 12_000 {
		t.Errorf("ElapsedMs = %d, want 12000", got)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	start := startRunning(t, s, clk)

	push(t, s, clk, good(start+1000))
	flush(t, s)
	before := s.Snapshot()

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	after := s.Snapshot()
	if after.State != Running || after.StartedAt != before.StartedAt || after.DistanceKm != before.DistanceKm {
		t.Errorf("Start while running changed state: %+v -> %+v", before, after)
	}
}

func TestFixesIgnoredWhileIdle(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	push(t, s, clk, good(t0+1000))
	flush(t, s)

	snap := s.Snapshot()
	if snap.State != Idle || snap.Accepted != 0 {
		t.Errorf("fix processed while idle: %+v", snap)
	}
}

func TestTooFastFixRejected(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	start := startRunning(t, s, clk)

	push(t, s, clk, good(start+1000))
	flush(t, s)
	before := s.Snapshot().DistanceKm

	jump := good(start + 2000)
	jump.DistanceFromPrevious = 150 // 540 km/h
	push(t, s, clk, jump)
	flush(t, s)

	snap := s.Snapshot()
	if snap.DistanceKm != before {
		t.Errorf("DistanceKm changed on rejected fix: %v -> %v", before, snap.DistanceKm)
	}
	if snap.Rejected["too_fast"] != 1 {
		t.Errorf("Rejected = %v, want one too_fast", snap.Rejected)
	}
}

func TestUnknownAccuracyAccepted(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	start := startRunning(t, s, clk)

	f := good(start + 1000)
	f.Accuracy = fix.Accuracy{}
	push(t, s, clk, f)
	flush(t, s)

	if got := s.Snapshot().Rejected; len(got) != 0 {
		t.Errorf("Rejected = %v, want none", got)
	}
}

func TestSetTargetSpeed(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	startRunning(t, s, clk)

	for i := 0; i < 2; i++ {
		clk.Advance(50 * time.Second)
		if err := s.AddManualSplit(); err != nil {
			t.Fatalf("AddManualSplit: %v", err)
		}
	}
	before := s.Snapshot()

	if err := s.SetTargetSpeed(90); err != nil {
		t.Fatalf("SetTargetSpeed: %v", err)
	}
	after := s.Snapshot()

	if diff := cmp.Diff(before.Splits, after.Splits); diff != "" {
		t.Errorf("Splits changed (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{40_000, 80_000}, after.Ideals); diff != "" {
		t.Errorf("Ideals mismatch (-want +got):\n%s", diff)
	}
	if after.TargetSpeedKmh != 90 {
		t.Errorf("TargetSpeedKmh = %d, want 90", after.TargetSpeedKmh)
	}

	for _, kmh := range []int{0, -5} {
		if err := s.SetTargetSpeed(kmh); !errors.Is(err, ErrInvalidTargetSpeed) {
			t.Errorf("SetTargetSpeed(%d) err = %v, want ErrInvalidTargetSpeed", kmh, err)
		}
	}
	if got := s.Snapshot().TargetSpeedKmh; got != 90 {
		t.Errorf("TargetSpeedKmh = %d after rejected change, want 90", got)
	}
}

func TestAddManualSplit(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	if err := s.AddManualSplit(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("AddManualSplit before start err = %v, want ErrNotStarted", err)
	}

	start := startRunning(t, s, clk)
	clk.Set(start + 61_500)
	if err := s.AddManualSplit(); err != nil {
		t.Fatalf("AddManualSplit: %v", err)
	}
	// same instant: clamped to stay strictly increasing
	if err := s.AddManualSplit(); err != nil {
		t.Fatalf("AddManualSplit: %v", err)
	}

	snap := s.Snapshot()
	if diff := cmp.Diff([]int64{61_500, 61_501}, snap.Splits); diff != "" {
		t.Errorf("Splits mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{60_000, 120_000}, snap.Ideals); diff != "" {
		t.Errorf("Ideals mismatch (-want +got):\n%s", diff)
	}
}

func TestGuidanceAutoClear(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	startRunning(t, s, clk)

	clk.Advance(5 * time.Second)
	if err := s.AddManualSplit(); err != nil {
		t.Fatalf("AddManualSplit: %v", err)
	}
	if got := s.Snapshot().Guidance; got != split.Decelerate {
		t.Fatalf("Guidance = %v, want decelerate", got)
	}

	clk.Advance(14 * time.Second)
	flush(t, s)
	if got := s.Snapshot().Guidance; got != split.Decelerate {
		t.Fatalf("Guidance cleared early: %v", got)
	}

	clk.Advance(time.Second)
	flush(t, s)
	if got := s.Snapshot().Guidance; got != split.GuidanceNone {
		t.Errorf("Guidance = %v, want none after display time", got)
	}
}

func TestGuidanceStaleClearIgnored(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	startRunning(t, s, clk)

	clk.Advance(5 * time.Second)
	if err := s.AddManualSplit(); err != nil {
		t.Fatalf("AddManualSplit: %v", err)
	}
	clk.Advance(10 * time.Second)
	if err := s.AddManualSplit(); err != nil {
		t.Fatalf("AddManualSplit: %v", err)
	}

	// the first advisory would have expired here
	clk.Advance(6 * time.Second)
	flush(t, s)
	snap := s.Snapshot()
	if snap.Guidance == split.GuidanceNone {
		t.Fatal("newer advisory removed by a stale clear")
	}

	clk.Advance(9 * time.Second)
	flush(t, s)
	if got := s.Snapshot().Guidance; got != split.GuidanceNone {
		t.Errorf("Guidance = %v, want none", got)
	}
}

func TestReset(t *testing.T) {
	tests := []struct {
		name    string
		restart bool
		want    State
	}{
		{"restarts into stabilizing", true, Stabilizing},
		{"stays idle", false, Idle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.RestartAfterReset = tt.restart
			s, clk := newTestSession(t, cfg)

			finished := make(chan Record, 1)
			s.OnFinish = func(r Record) { finished <- r }

			start := startRunning(t, s, clk)
			for i := int64(1); i <= 60; i++ {
				push(t, s, clk, good(start+i*1000))
			}
			flush(t, s)
			if len(s.Snapshot().Splits) != 1 {
				t.Fatalf("expected one split before reset, got %v", s.Snapshot().Splits)
			}

			if err := s.Reset(); err != nil {
				t.Fatalf("Reset: %v", err)
			}
			snap := s.Snapshot()
			if snap.State != tt.want {
				t.Errorf("State = %v, want %v", snap.State, tt.want)
			}
			if snap.DistanceKm != 0 || len(snap.Splits) != 0 || len(snap.Ideals) != 0 || snap.ElapsedMs != 0 {
				t.Errorf("aggregates not cleared: %+v", snap)
			}
			if clk.activeTickers() != 0 {
				t.Errorf("ticker still active after reset")
			}

			select {
			case rec := <-finished:
				if rec.StartedAt != start || len(rec.Splits) != 1 || len(rec.Ideals) != 1 {
					t.Errorf("finished record = %+v", rec)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("OnFinish not called")
			}
		})
	}
}

func TestSubscribe(t *testing.T) {
	s, clk := newTestSession(t, DefaultConfig())
	ch, cancel := s.Subscribe()
	defer cancel()

	first := <-ch
	if first.State != Idle {
		t.Fatalf("initial snapshot state = %v, want idle", first.State)
	}

	startRunning(t, s, clk)

	var last Snapshot
	for last.State != Running {
		select {
		case last = <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("no running snapshot, last state %v", last.State)
		}
	}
}

func TestCloseFinishesRun(t *testing.T) {
	clk := newFakeClock(t0)
	s, err := New(DefaultConfig(), clk)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var got []Record
	s.OnFinish = func(r Record) { got = append(got, r) }

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	start := startRunning(t, s, clk)
	for i := int64(1); i <= 5; i++ {
		push(t, s, clk, good(start+i*1000))
	}
	flush(t, s)
	clk.Advance(3 * time.Second)

	s.Close()
	if err := <-errc; err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
	if len(got) != 1 || got[0].ElapsedMs != 8000 {
		t.Errorf("finished records = %+v", got)
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close err = %v, want ErrClosed", err)
	}
	if err := s.Push(context.Background(), good(start+9000)); !errors.Is(err, ErrClosed) {
		t.Errorf("Push after Close err = %v, want ErrClosed", err)
	}
}

func TestCloseBeforeRun(t *testing.T) {
	s, err := New(DefaultConfig(), newFakeClock(t0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	snaps, _ := s.Subscribe()

	// queued with no loop to handle it
	errc := make(chan error, 1)
	go func() { errc <- s.Start() }()

	s.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Start err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start still blocked after Close")
	}

	if _, ok := <-snaps; !ok {
		t.Fatal("expected the initial snapshot before the channel closes")
	}
	if _, ok := <-snaps; ok {
		t.Error("subscription still open after Close")
	}
	if err := s.Run(context.Background()); err != nil {
		t.Errorf("Run after Close = %v, want nil", err)
	}
}
