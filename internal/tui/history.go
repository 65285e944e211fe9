package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Dr-Fate/RegularityTracker/internal/export"
	"github.com/Dr-Fate/RegularityTracker/internal/service"
)

// HistoryModel lists finished runs with their regularity metrics
type HistoryModel struct {
	archive  Archive
	runs     []service.RunSummary
	viewport viewport.Model
	loading  bool
	err      error
	ready    bool
}

// NewHistoryModel creates the history screen
func NewHistoryModel(archive Archive) HistoryModel {
	return HistoryModel{archive: archive}
}

type historyLoadedMsg struct {
	runs []service.RunSummary
	err  error
}

// Init loads the run history
func (m HistoryModel) Init() tea.Cmd {
	return m.load
}

func (m HistoryModel) load() tea.Msg {
	if m.archive == nil {
		return historyLoadedMsg{err: service.ErrNoHistory}
	}
	runs, err := m.archive.History(context.Background(), service.HistoryLimit)
	return historyLoadedMsg{runs: runs, err: err}
}

// Update handles messages
func (m HistoryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case historyLoadedMsg:
		m.loading = false
		m.err = msg.err
		m.runs = msg.runs
		if m.ready {
			m.viewport.SetContent(m.renderContent())
		}

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.viewport.SetContent(m.renderContent())

	case tea.KeyMsg:
		if msg.String() == "r" {
			m.loading = true
			return m, m.load
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the history screen
func (m HistoryModel) View() string {
	if m.loading {
		return "\n  Loading runs..."
	}
	if errors.Is(m.err, service.ErrNoHistory) {
		return statusStyle.Render("  Run history is disabled (storage.history in the config)")
	}
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("\n  Error: %v", m.err))
	}

	footer := statusStyle.Render("  r: refresh  j/k or arrows: scroll")
	if !m.ready {
		return lipgloss.JoinVertical(lipgloss.Left, m.renderContent(), footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewport.View(), footer)
}

func (m HistoryModel) renderContent() string {
	if len(m.runs) == 0 {
		return "  No finished runs yet"
	}

	var lines []string
	lines = append(lines, cardTitleStyle.Render("Recent runs"))
	for _, rs := range m.runs {
		r := rs.Run
		head := fmt.Sprintf("%s  %s  %d km at %d km/h",
			humanize.Time(r.StartedAt),
			export.FormatClock(r.ElapsedMs),
			rs.Summary.Kilometers,
			r.TargetSpeedKmh,
		)
		detail := fmt.Sprintf("avg %.1f km/h, mean deviation %.1fs, on pace %.0f%%",
			rs.Summary.AverageSpeedKmh,
			rs.Summary.MeanAbsDeviationMs/1000,
			rs.Summary.OnPacePct,
		)
		lines = append(lines,
			RenderMetric(rs.Assessment, head),
			"  "+helpDescStyle.Render(detail+"  "+humanize.Comma(int64(len(r.Splits)))+" splits  id "+shortID(r.ID)),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
