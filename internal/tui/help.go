package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dr-Fate/RegularityTracker/internal/split"
)

// HelpModel is the help screen model
type HelpModel struct{}

// NewHelpModel creates a new help model
func NewHelpModel() HelpModel {
	return HelpModel{}
}

// Init initializes the help screen
func (m HelpModel) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m HelpModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

// View renders the help screen
func (m HelpModel) View() string {
	sections := []string{cardTitleStyle.Render("Keyboard Shortcuts")}

	sections = append(sections, m.renderSection("Navigation", []keyHelp{
		{"1", "Live measurement"},
		{"2", "Run history"},
		{"?", "Help (this screen)"},
		{"q", "Quit"},
		{"esc", "Close help"},
	}))

	sections = append(sections, m.renderSection("Live", []keyHelp{
		{"s", "Start (waits for a stable GPS signal)"},
		{"p", "Pause / resume"},
		{"m", "Manual split at the current time"},
		{"r", "Reset and archive the run"},
		{"up / down", "Target speed +1 / -1 km/h"},
		{"pgup / pgdown", "Target speed +10 / -10 km/h"},
		{"e", "Export splits to CSV"},
	}))

	sections = append(sections, m.renderSection("History", []keyHelp{
		{"r", "Refresh list"},
		{"j / k", "Scroll"},
	}))

	sections = append(sections, m.renderGuidanceHelp())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

type keyHelp struct {
	key  string
	desc string
}

func (m HelpModel) renderSection(title string, keys []keyHelp) string {
	lines := []string{"", successStyle.Bold(true).Render(title)}
	for _, k := range keys {
		lines = append(lines, "  "+RenderKeyHelp(k.key, k.desc))
	}
	return strings.Join(lines, "\n")
}

func (m HelpModel) renderGuidanceHelp() string {
	lines := []string{"", successStyle.Bold(true).Render("Advisories"), ""}

	advisories := []struct {
		g    split.Guidance
		desc string
	}{
		{split.Decelerate, "Ahead of the ideal time at the last kilometer"},
		{split.Accelerate, "Behind the ideal time at the last kilometer"},
		{split.OnPace, "Within the tolerance of the ideal time"},
	}
	for _, a := range advisories {
		lines = append(lines, "  "+guidanceStyle(a.g).Render(a.g.Label())+" "+helpDescStyle.Render(a.desc))
	}
	return strings.Join(lines, "\n")
}
