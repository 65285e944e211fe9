package session

import (
	"go.uber.org/zap"

	"github.com/Dr-Fate/RegularityTracker/internal/fix"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

// Record is a finished run, handed to the archive on reset or shutdown
type Record struct {
	StartedAt      int64 // wall clock of the first gate firing, ms
	EndedAt        int64
	ElapsedMs      int64
	DistanceKm     float64
	TargetSpeedKmh int
	Splits         []int64
	Ideals         []int64
}

// machine holds the run aggregate. It is only touched by the event loop.
type machine struct {
	cfg   Config
	log   *zap.SugaredLogger
	gate  *fix.Gate
	det   split.Detector
	sched split.Schedule

	state         State
	started       bool // startMs is set
	restabilizing bool
	firstStartMs  int64
	startMs       int64
	elapsedMs     int64

	acc        split.Accumulator
	recordedKm int
	splits     []int64
	ideals     []int64
	last       *fix.GeoFix

	guidance     split.Guidance
	guidanceDiff int64
	guidanceKey  int // identifies the split that armed the advisory, unique across resets
	guidanceSeq  int

	accepted           int
	rejected           map[fix.Reason]int
	consecutiveRejects int
	rebasePending      bool // the next monotonic, accurate fix becomes the baseline
	satellites         int
}

func newMachine(cfg Config, log *zap.SugaredLogger) *machine {
	policy, _ := split.ParsePolicy(string(cfg.MultiKmPolicy))
	return &machine{
		cfg:      cfg,
		log:      log,
		gate:     fix.NewGate(cfg.MinStableSpeedKmh, cfg.Filter.MaxAccuracyM, cfg.RequiredGoodFixes),
		det:      split.Detector{LatencyCorrectionMs: cfg.LatencyCorrectionMs, Policy: policy},
		sched:    split.Schedule{SpeedKmh: cfg.TargetSpeedKmh},
		rejected: make(map[fix.Reason]int),
	}
}

func (m *machine) setState(s State) {
	if m.state == s {
		return
	}
	m.log.Infow("state change", "from", m.state, "to", s)
	m.state = s
}

// clear drops every run aggregate but keeps the target speed
func (m *machine) clear() {
	m.started = false
	m.restabilizing = false
	m.firstStartMs = 0
	m.startMs = 0
	m.elapsedMs = 0
	m.acc.Reset()
	m.recordedKm = 0
	m.splits = nil
	m.ideals = nil
	m.last = nil
	m.guidance = split.GuidanceNone
	m.guidanceDiff = 0
	m.guidanceKey = 0
	m.accepted = 0
	m.rejected = make(map[fix.Reason]int)
	m.consecutiveRejects = 0
	m.rebasePending = false
	m.gate.Reset()
}

// start begins a new run from Idle, or resumes a paused one
func (m *machine) start(now int64) {
	switch m.state {
	case Idle:
		m.clear()
		m.setState(Stabilizing)
	case Paused:
		m.resume(now)
	}
}

func (m *machine) pause(now int64) {
	switch m.state {
	case Running:
		if e := now - m.startMs; e > m.elapsedMs {
			m.elapsedMs = e
		}
		m.setState(Paused)
	case Stabilizing:
		m.gate.Reset()
		m.setState(Paused)
	}
}

func (m *machine) resume(now int64) {
	if m.state != Paused {
		return
	}
	switch {
	case !m.started:
		m.gate.Reset()
		m.last = nil
		m.setState(Stabilizing)
	case m.cfg.ResumeRestabilizes:
		m.gate.Reset()
		m.last = nil
		m.restabilizing = true
		m.setState(Stabilizing)
	default:
		m.startMs = now - m.elapsedMs
		m.last = nil
		m.setState(Running)
	}
}

// reset returns the finished run, if there was one, and goes back to Idle
func (m *machine) reset(now int64) (Record, bool) {
	rec, ok := m.record(now)
	m.clear()
	m.setState(Idle)
	if m.cfg.RestartAfterReset {
		m.setState(Stabilizing)
	}
	return rec, ok
}

func (m *machine) record(now int64) (Record, bool) {
	if !m.started || (len(m.splits) == 0 && m.acc.Km() == 0) {
		return Record{}, false
	}
	elapsed := m.elapsedMs
	if m.state == Running {
		if e := now - m.startMs; e > elapsed {
			elapsed = e
		}
	}
	return Record{
		StartedAt:      m.firstStartMs,
		EndedAt:        now,
		ElapsedMs:      elapsed,
		DistanceKm:     m.acc.Km(),
		TargetSpeedKmh: m.sched.SpeedKmh,
		Splits:         append([]int64(nil), m.splits...),
		Ideals:         append([]int64(nil), m.ideals...),
	}, true
}

func (m *machine) tick(now int64) {
	if m.state != Running {
		return
	}
	if e := now - m.startMs; e > m.elapsedMs {
		m.elapsedMs = e
	}
}

func (m *machine) setTargetSpeed(kmh int) error {
	sched, err := split.NewSchedule(kmh)
	if err != nil {
		return ErrInvalidTargetSpeed
	}
	m.sched = sched
	m.ideals = sched.Times(len(m.splits))
	m.log.Infow("target speed changed", "kmh", kmh, "splits", len(m.splits))
	return nil
}

func (m *machine) addManualSplit(now int64) error {
	if !m.started {
		return ErrNotStarted
	}
	elapsed := m.elapsedMs
	if m.state == Running {
		elapsed = now - m.startMs
	}
	m.appendSplit(elapsed)
	m.log.Infow("manual split", "km", len(m.splits), "elapsed_ms", m.splits[len(m.splits)-1])
	return nil
}

// appendSplit records a split, keeping splits strictly increasing and
// ideals parallel, then classifies it
func (m *machine) appendSplit(elapsed int64) {
	var prev int64
	if n := len(m.splits); n > 0 {
		prev = m.splits[n-1]
	}
	if elapsed <= prev {
		elapsed = prev + 1
	}
	m.splits = append(m.splits, elapsed)
	m.ideals = append(m.ideals, m.sched.Ideal(len(m.splits)))

	m.guidance, m.guidanceDiff = split.Classify(m.splits, m.ideals, m.cfg.GuidanceThresholdMs)
	m.guidanceSeq++
	m.guidanceKey = m.guidanceSeq
}

// clearGuidance drops the advisory armed under key; stale keys are ignored
func (m *machine) clearGuidance(key int) {
	if key != m.guidanceKey {
		return
	}
	m.guidance = split.GuidanceNone
	m.guidanceDiff = 0
}

// push feeds one fix through the filter and, depending on state, the gate or
// the accumulator and detector
func (m *machine) push(f fix.GeoFix) {
	if m.state != Stabilizing && m.state != Running {
		return
	}
	if f.Satellites > 0 {
		m.satellites = f.Satellites
	}

	if m.rebasePending && m.rebase(f) {
		return
	}

	v := m.cfg.Filter.Check(m.last, f)
	if !v.Accepted {
		m.reject(f, v.Reason)
		return
	}

	if m.state == Stabilizing {
		m.observe(f)
		return
	}

	if m.last == nil {
		m.accept(f)
		return
	}

	before, after := m.acc.Peek(v.DeltaM)
	if !m.det.Allows(before, after) {
		m.reject(f, fix.ReasonMultiBoundary)
		return
	}

	prev := *m.last
	m.accept(f)
	before, after = m.acc.Add(v.DeltaM)
	for _, c := range m.det.Detect(prev, f, before, after, m.startMs, m.recordedKm) {
		m.appendSplit(c.Elapsed)
		m.recordedKm = c.Km
		m.log.Infow("split", "km", c.Km, "elapsed_ms", m.splits[len(m.splits)-1],
			"ideal_ms", m.ideals[len(m.ideals)-1], "guidance", m.guidance)
	}
}

func (m *machine) accept(f fix.GeoFix) {
	m.accepted++
	m.consecutiveRejects = 0
	m.rebasePending = false
	m.last = &f
}

// rebase makes f the baseline without adding its distance. Only fixes that
// are newer than the baseline and accurate enough qualify.
func (m *machine) rebase(f fix.GeoFix) bool {
	if m.last != nil && f.Timestamp <= m.last.Timestamp {
		return false
	}
	if !f.Accuracy.Within(m.cfg.Filter.MaxAccuracyM) {
		return false
	}
	m.log.Infow("rebasing after rejected fixes", "timestamp", f.Timestamp)
	m.accept(f)
	return true
}

func (m *machine) observe(f fix.GeoFix) {
	m.accept(f)
	if !m.gate.Observe(f) {
		return
	}

	if m.restabilizing {
		m.startMs = f.Timestamp - m.elapsedMs
		m.restabilizing = false
	} else {
		m.startMs = f.Timestamp
		m.firstStartMs = f.Timestamp
		m.elapsedMs = 0
		m.acc.Reset()
		m.recordedKm = 0
	}
	m.started = true
	m.setState(Running)
}

func (m *machine) reject(f fix.GeoFix, r fix.Reason) {
	m.rejected[r]++
	m.log.Debugw("fix rejected", "reason", r, "timestamp", f.Timestamp, "accuracy", f.Accuracy)

	if m.state == Stabilizing {
		m.gate.Reset()
	}
	switch r {
	case fix.ReasonTooFar, fix.ReasonTooFast, fix.ReasonMultiBoundary:
	default:
		return
	}
	m.consecutiveRejects++
	if m.cfg.RebaseAfterRejects > 0 && m.consecutiveRejects >= m.cfg.RebaseAfterRejects {
		m.rebasePending = true
	}
}

func (m *machine) snapshot() Snapshot {
	rejected := make(map[string]int, len(m.rejected))
	for r, n := range m.rejected {
		rejected[r.String()] = n
	}
	return Snapshot{
		State:          m.state,
		Running:        m.state == Running,
		ElapsedMs:      m.elapsedMs,
		DistanceKm:     m.acc.Km(),
		Splits:         append([]int64{}, m.splits...),
		Ideals:         append([]int64{}, m.ideals...),
		Guidance:       m.guidance,
		GuidanceDiffMs: m.guidanceDiff,
		TargetSpeedKmh: m.sched.SpeedKmh,
		StartedAt:      m.firstStartMs,
		GoodFixes:      m.gate.Count(),
		Satellites:     m.satellites,
		Accepted:       m.accepted,
		Rejected:       rejected,
	}
}
