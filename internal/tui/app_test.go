package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/Dr-Fate/RegularityTracker/internal/analysis"
	"github.com/Dr-Fate/RegularityTracker/internal/service"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
	"github.com/Dr-Fate/RegularityTracker/internal/store"
)

type fakeSession struct {
	snap    session.Snapshot
	calls   []string
	targets []int
	err     error
}

func (f *fakeSession) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeSession) Start() error          { return f.record("start") }
func (f *fakeSession) Pause() error          { return f.record("pause") }
func (f *fakeSession) Resume() error         { return f.record("resume") }
func (f *fakeSession) Reset() error          { return f.record("reset") }
func (f *fakeSession) AddManualSplit() error { return f.record("split") }
func (f *fakeSession) SetTargetSpeed(kmh int) error {
	f.targets = append(f.targets, kmh)
	return f.record("target")
}
func (f *fakeSession) Snapshot() session.Snapshot { return f.snap }

type fakeArchive struct {
	exported []session.Snapshot
	runs     []service.RunSummary
	err      error
}

func (f *fakeArchive) ExportSnapshot(snap session.Snapshot) (string, error) {
	f.exported = append(f.exported, snap)
	return "/tmp/medicion_1.csv", f.err
}

func (f *fakeArchive) History(context.Context, int) ([]service.RunSummary, error) {
	return f.runs, f.err
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestApp(snap session.Snapshot) (*App, *fakeSession, *fakeArchive, chan session.Snapshot) {
	sess := &fakeSession{snap: snap}
	archive := &fakeArchive{}
	snaps := make(chan session.Snapshot, 1)
	return NewApp(sess, snaps, archive, 3), sess, archive, snaps
}

// press sends a key and runs the resulting command, if any
func press(t *testing.T, app *App, k string) tea.Msg {
	t.Helper()
	_, cmd := app.Update(key(k))
	if cmd == nil {
		return nil
	}
	msg := cmd()
	app.Update(msg)
	return msg
}

func TestLiveKeys(t *testing.T) {
	tests := []struct {
		name  string
		state session.State
		keys  []string
		want  []string
	}{
		{"start", session.Idle, []string{"s"}, []string{"start"}},
		{"pause while running", session.Running, []string{"p"}, []string{"pause"}},
		{"resume while paused", session.Paused, []string{"p"}, []string{"resume"}},
		{"reset and split", session.Running, []string{"m", "r"}, []string{"split", "reset"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, sess, _, _ := newTestApp(session.Snapshot{State: tt.state, TargetSpeedKmh: 60})
			for _, k := range tt.keys {
				press(t, app, k)
			}
			if diff := cmp.Diff(tt.want, sess.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTargetSpeedKeys(t *testing.T) {
	app, sess, _, _ := newTestApp(session.Snapshot{TargetSpeedKmh: 60})
	press(t, app, "up")
	press(t, app, "down")
	if diff := cmp.Diff([]int{61, 59}, sess.targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}

	// already at the limit: nothing to send
	app, sess, _, _ = newTestApp(session.Snapshot{TargetSpeedKmh: 120})
	if msg := press(t, app, "up"); msg != nil {
		t.Errorf("up at 120 produced %v", msg)
	}
	if len(sess.targets) != 0 {
		t.Errorf("targets = %v, want none", sess.targets)
	}
}

func TestCommandErrorShownInStatus(t *testing.T) {
	app, sess, _, _ := newTestApp(session.Snapshot{State: session.Stabilizing})
	sess.err = session.ErrNotStarted

	msg := press(t, app, "m")
	st, ok := msg.(statusMsg)
	if !ok || !errors.Is(st.err, session.ErrNotStarted) {
		t.Fatalf("msg = %#v", msg)
	}
	if !strings.Contains(app.View(), session.ErrNotStarted.Error()) {
		t.Error("status line does not show the error")
	}
}

func TestExportKey(t *testing.T) {
	snap := session.Snapshot{State: session.Running, Splits: []int64{60500}, Ideals: []int64{60000}}
	app, _, archive, _ := newTestApp(snap)

	press(t, app, "e")
	if len(archive.exported) != 1 || archive.exported[0].Splits[0] != 60500 {
		t.Fatalf("exported = %+v", archive.exported)
	}
	if !strings.Contains(app.View(), "medicion_1.csv") {
		t.Error("status line does not show the export path")
	}
}

func TestSnapshotUpdatesView(t *testing.T) {
	app, _, _, snaps := newTestApp(session.Snapshot{})

	snaps <- session.Snapshot{
		State:          session.Running,
		ElapsedMs:      125_000,
		DistanceKm:     2.04,
		Splits:         []int64{59000, 119500},
		Ideals:         []int64{60000, 120000},
		Guidance:       split.Decelerate,
		GuidanceDiffMs: 500,
		TargetSpeedKmh: 60,
		Satellites:     10,
	}
	msg := app.Init()()
	if _, cmd := app.Update(msg); cmd == nil {
		t.Error("expected to keep waiting for snapshots")
	}

	view := app.View()
	for _, want := range []string{"02:05", "¡Desacelerar!", "Tiempo: -00:00,5", "GPS: Excelente", "01:59,5", "2.04 km"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestStabilizingProgress(t *testing.T) {
	app, _, _, _ := newTestApp(session.Snapshot{State: session.Stabilizing, GoodFixes: 2})
	if !strings.Contains(app.View(), "2/3") {
		t.Error("view does not show gate progress")
	}
}

func TestSnapshotsClosedQuits(t *testing.T) {
	app, _, _, snaps := newTestApp(session.Snapshot{})
	close(snaps)

	msg := app.Init()()
	_, cmd := app.Update(msg)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestHistoryScreen(t *testing.T) {
	app, _, archive, _ := newTestApp(session.Snapshot{})
	archive.runs = []service.RunSummary{{
		Run: store.Run{
			ID:             "0123456789abcdef",
			StartedAt:      time.Now().Add(-2 * time.Hour),
			ElapsedMs:      185_000,
			TargetSpeedKmh: 60,
			Splits:         make([]store.Split, 3),
		},
		Summary:    analysis.Summary{Kilometers: 3, MeanAbsDeviationMs: 400},
		Assessment: "Excelente",
	}}

	msg := press(t, app, "2")
	if _, ok := msg.(historyLoadedMsg); !ok {
		t.Fatalf("msg = %#v", msg)
	}
	view := app.View()
	for _, want := range []string{"Excelente", "2 hours ago", "03:05", "01234567"} {
		if !strings.Contains(view, want) {
			t.Errorf("history view missing %q", want)
		}
	}

	press(t, app, "?")
	if app.screen != ScreenHelp {
		t.Fatalf("screen = %v, want help", app.screen)
	}
	press(t, app, "esc")
	if app.screen != ScreenHistory {
		t.Errorf("esc returned to %v, want history", app.screen)
	}
}

func TestHistoryDisabled(t *testing.T) {
	app, _, archive, _ := newTestApp(session.Snapshot{})
	archive.err = service.ErrNoHistory
	press(t, app, "2")
	if !strings.Contains(app.View(), "disabled") {
		t.Error("expected disabled message")
	}
}
