package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/Dr-Fate/RegularityTracker/internal/config"
	"github.com/Dr-Fate/RegularityTracker/internal/export"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

const maxTableRows = 10

// LiveModel shows the running measurement and handles its controls
type LiveModel struct {
	sess          Session
	archive       Archive
	requiredFixes int

	snap  session.Snapshot
	table table.Model
}

// NewLiveModel creates the live screen
func NewLiveModel(sess Session, archive Archive, requiredFixes int) LiveModel {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Km", Width: 4},
			{Title: "Medido", Width: 10},
			{Title: "Ideal", Width: 10},
			{Title: "Diferencia", Width: 11},
		}),
		table.WithHeight(1),
	)
	t.SetStyles(tableStyles())

	m := LiveModel{
		sess:          sess,
		archive:       archive,
		requiredFixes: requiredFixes,
		table:         t,
	}
	return m.withSnapshot(sess.Snapshot())
}

// Init initializes the live screen
func (m LiveModel) Init() tea.Cmd {
	return nil
}

func (m LiveModel) withSnapshot(snap session.Snapshot) LiveModel {
	m.snap = snap

	rows := make([]table.Row, 0, len(snap.Splits))
	for _, r := range export.Rows(snap.Splits, snap.Ideals) {
		ideal, diff := "-", "-"
		if r.HasIdeal {
			ideal = export.FormatSplit(r.Ideal)
			diff = export.FormatDifference(r.Measured, r.Ideal)
		}
		rows = append(rows, table.Row{fmt.Sprint(r.Km), export.FormatSplit(r.Measured), ideal, diff})
	}
	m.table.SetRows(rows)
	m.table.SetHeight(min(max(len(rows), 1), maxTableRows) + 1)
	if len(rows) > 0 {
		m.table.GotoBottom()
	}
	return m
}

func command(done string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: done}
	}
}

func (m LiveModel) stepTarget(delta int) tea.Cmd {
	current := m.snap.TargetSpeedKmh
	next := config.StepTargetSpeed(current, delta)
	if next == current {
		return nil
	}
	return command(fmt.Sprintf("Target speed %d km/h", next), func() error {
		return m.sess.SetTargetSpeed(next)
	})
}

func (m LiveModel) exportSplits() tea.Msg {
	path, err := m.archive.ExportSnapshot(m.sess.Snapshot())
	if err != nil {
		return statusMsg{err: fmt.Errorf("export: %w", err)}
	}
	return statusMsg{text: "Exported to " + path}
}

// Update handles messages
func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "s":
		return m, command("Measurement started", m.sess.Start)
	case "p":
		if m.snap.State == session.Paused {
			return m, command("Resumed", m.sess.Resume)
		}
		return m, command("Paused", m.sess.Pause)
	case "r":
		return m, command("Reset", m.sess.Reset)
	case "m":
		return m, command("Manual split", m.sess.AddManualSplit)
	case "up", "+":
		return m, m.stepTarget(1)
	case "down", "-":
		return m, m.stepTarget(-1)
	case "pgup":
		return m, m.stepTarget(10)
	case "pgdown":
		return m, m.stepTarget(-10)
	case "e":
		if m.archive == nil {
			return m, nil
		}
		return m, m.exportSplits
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the live screen
func (m LiveModel) View() string {
	s := m.snap
	var sections []string

	clock := clockStyle.Render(export.FormatClock(s.ElapsedMs))
	state := metricValueStyle.Render(strings.ToUpper(s.State.String()))
	signal := signalStyle(s.Signal()).Render(s.Signal().Label())
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Center, clock, "  ", state, "  ", signal))

	metrics := []string{
		RenderMetric("Distance", fmt.Sprintf("%.2f km", s.DistanceKm)),
		RenderMetric("Target speed", fmt.Sprintf("%d km/h", s.TargetSpeedKmh)),
		RenderMetric("Kilometers", fmt.Sprint(len(s.Splits))),
		RenderMetric("Fixes", fmt.Sprintf("%d accepted, %d rejected", s.Accepted, rejectedTotal(s))),
	}
	if s.State == session.Stabilizing && m.requiredFixes > 0 {
		pct := float64(s.GoodFixes) / float64(m.requiredFixes)
		metrics = append(metrics, RenderMetric("Stabilizing",
			RenderProgressBar(pct, 20)+fmt.Sprintf(" %d/%d", s.GoodFixes, m.requiredFixes)))
	}
	sections = append(sections, cardStyle.Render(strings.Join(metrics, "\n")))

	if s.Guidance != split.GuidanceNone {
		advisory := s.Guidance.Label() + "  " + export.FormatDelta(s.GuidanceDiffMs)
		sections = append(sections, guidanceStyle(s.Guidance).Render(advisory))
	}

	if len(s.Splits) > 0 {
		sections = append(sections, cardTitleStyle.Render("Splits"), m.table.View())
	}
	if chart := deviationChart(s.Splits, s.Ideals); chart != "" {
		sections = append(sections, cardTitleStyle.Render("Deviation per km (s)"), chart)
	}

	sections = append(sections, statusStyle.Render(
		"s: start  p: pause/resume  m: split  r: reset  up/down: target  e: export"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func rejectedTotal(s session.Snapshot) int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// deviationChart plots split minus ideal in seconds for each kilometer.
// It needs at least two kilometers with an ideal time.
func deviationChart(splits, ideals []int64) string {
	n := min(len(splits), len(ideals))
	if n < 2 {
		return ""
	}
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		data[i] = float64(splits[i]-ideals[i]) / 1000
	}
	return asciigraph.Plot(data,
		asciigraph.Height(6),
		asciigraph.Width(50),
		asciigraph.Precision(1),
	)
}
