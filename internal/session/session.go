package session

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

const eventBuffer = 64

type fixEvent struct{ f fix.GeoFix }

type tickEvent struct{}

type clearEvent struct{ key int }

type command struct {
	apply func(now int64) error
	reply chan error
}

// Session owns one measurement. Fixes, ticks and commands are serialized
// through a single event loop started with Run; readers get snapshots.
type Session struct {
	cfg   Config
	clock Clock
	log   *zap.SugaredLogger
	m     *machine

	// OnFinish receives every finished run. Set it before Run.
	OnFinish func(Record)

	events    chan any
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	running   atomic.Bool

	mu   sync.RWMutex
	snap Snapshot

	subsMu sync.Mutex
	subs   map[int]chan Snapshot
	nextID int
	closed bool

	tickQuit  chan struct{}
	tickDone  chan struct{}
	clearStop func() bool
	armedKey  int
}

// New creates a session in Idle. A nil clock uses the system clock.
func New(cfg Config, clock Clock) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	log := zap.S().Named("session")
	s := &Session{
		cfg:     cfg,
		clock:   clock,
		log:     log,
		m:       newMachine(cfg, log),
		events:  make(chan any, eventBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		subs:    make(map[int]chan Snapshot),
	}
	s.snap = s.m.snapshot()
	return s, nil
}

// Config returns the configuration the session was created with
func (s *Session) Config() Config {
	return s.cfg
}

// Run processes events until ctx is cancelled or Close is called.
// A run still in progress is handed to OnFinish before Run returns.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

// Close stops the event loop and waits for it to finish. Closing a session
// whose loop never ran fails any queued command with ErrClosed, and a later
// Run returns immediately.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.running.CompareAndSwap(false, true) {
		s.shutdown()
		close(s.done)
		return
	}
	<-s.done
}

// Done is closed once the event loop has stopped
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) handle(ev any) {
	now := s.clock.Now()
	switch e := ev.(type) {
	case fixEvent:
		s.m.push(e.f)
	case tickEvent:
		s.m.tick(now)
	case clearEvent:
		s.m.clearGuidance(e.key)
	case command:
		err := e.apply(now)
		s.sync()
		e.reply <- err
		return
	}
	s.sync()
}

// sync reconciles the ticker and the advisory timer with the machine state and
// publishes a fresh snapshot
func (s *Session) sync() {
	running := s.m.state == Running
	if running && s.tickQuit == nil {
		s.startTicker()
	}
	if !running && s.tickQuit != nil {
		s.stopTicker()
	}

	if s.m.guidanceKey != s.armedKey {
		s.disarm()
		s.armedKey = s.m.guidanceKey
		if s.armedKey != 0 && s.m.guidance != split.GuidanceNone && s.cfg.GuidanceDisplay > 0 {
			key := s.armedKey
			s.clearStop = s.clock.AfterFunc(s.cfg.GuidanceDisplay, func() {
				s.send(clearEvent{key: key})
			})
		}
	}

	snap := s.m.snapshot()
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Session) disarm() {
	if s.clearStop != nil {
		s.clearStop()
		s.clearStop = nil
	}
}

func (s *Session) startTicker() {
	c, stop := s.clock.Tick(s.cfg.TickInterval)
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stop()
		for {
			select {
			case <-quit:
				return
			case <-c:
				select {
				case s.events <- tickEvent{}:
				case <-quit:
					return
				}
			}
		}
	}()
	s.tickQuit, s.tickDone = quit, done
}

// stopTicker returns once the ticker goroutine has exited
func (s *Session) stopTicker() {
	close(s.tickQuit)
	<-s.tickDone
	s.tickQuit, s.tickDone = nil, nil
}

func (s *Session) shutdown() {
	if s.tickQuit != nil {
		s.stopTicker()
	}
	s.disarm()

	if rec, ok := s.m.record(s.clock.Now()); ok && s.OnFinish != nil {
		s.OnFinish(rec)
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// send queues an event without waiting for it to be handled
func (s *Session) send(ev any) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// do runs apply on the event loop and waits for its result
func (s *Session) do(apply func(now int64) error) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	reply := make(chan error, 1)
	select {
	case s.events <- command{apply: apply, reply: reply}:
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// Push queues a fix. It blocks only while the event buffer is full.
func (s *Session) Push(ctx context.Context, f fix.GeoFix) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.events <- fixEvent{f: f}:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins stabilizing from Idle or resumes a paused run.
// It is a no-op while stabilizing or running.
func (s *Session) Start() error {
	return s.do(func(now int64) error {
		s.m.start(now)
		return nil
	})
}

// Pause freezes the elapsed time. The ticker is stopped when Pause returns.
func (s *Session) Pause() error {
	return s.do(func(now int64) error {
		s.m.pause(now)
		return nil
	})
}

// Resume continues a paused run
func (s *Session) Resume() error {
	return s.do(func(now int64) error {
		s.m.resume(now)
		return nil
	})
}

// Reset discards the run and returns to Idle, or straight into
// stabilization when the config asks for it
func (s *Session) Reset() error {
	return s.do(func(now int64) error {
		rec, ok := s.m.reset(now)
		if ok && s.OnFinish != nil {
			go s.OnFinish(rec)
		}
		return nil
	})
}

// AddManualSplit records a split at the current elapsed time
func (s *Session) AddManualSplit() error {
	return s.do(s.m.addManualSplit)
}

// SetTargetSpeed replaces the ideal times; measured splits are untouched
func (s *Session) SetTargetSpeed(kmh int) error {
	return s.do(func(int64) error {
		return s.m.setTargetSpeed(kmh)
	})
}

// Tick updates the elapsed time now, outside the periodic ticker
func (s *Session) Tick() error {
	return s.do(func(now int64) error {
		s.m.tick(now)
		return nil
	})
}

// Flush returns once every event queued before it has been handled
func (s *Session) Flush() error {
	return s.do(func(int64) error { return nil })
}

// Snapshot returns the latest published state. Its slices must not be modified.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Subscribe returns a channel that receives the current snapshot and then
// every new one. Slow readers only see the latest. cancel releases it.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.Snapshot()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

func (s *Session) publish(snap Snapshot) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
