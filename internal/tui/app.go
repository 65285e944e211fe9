package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dr-Fate/RegularityTracker/internal/service"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
)

// Session is the part of a measurement session the monitor drives
type Session interface {
	Start() error
	Pause() error
	Resume() error
	Reset() error
	AddManualSplit() error
	SetTargetSpeed(kmh int) error
	Snapshot() session.Snapshot
}

// Archive exports the live splits and lists finished runs
type Archive interface {
	ExportSnapshot(snap session.Snapshot) (string, error)
	History(ctx context.Context, limit int) ([]service.RunSummary, error)
}

// Screen identifiers
type Screen int

const (
	ScreenLive Screen = iota
	ScreenHistory
	ScreenHelp
)

// App is the root Bubble Tea model
type App struct {
	screen     Screen
	prevScreen Screen

	live    LiveModel
	history HistoryModel
	help    HelpModel

	snaps <-chan session.Snapshot

	width  int
	height int

	status string
}

// snapshotMsg carries a new session state
type snapshotMsg session.Snapshot

// snapshotsClosedMsg is sent once the session stopped publishing
type snapshotsClosedMsg struct{}

// statusMsg reports the outcome of a command
type statusMsg struct {
	text string
	err  error
}

// NewApp creates the monitor. snaps is a session subscription; requiredFixes
// sizes the stabilization progress bar.
func NewApp(sess Session, snaps <-chan session.Snapshot, archive Archive, requiredFixes int) *App {
	return &App{
		screen:  ScreenLive,
		live:    NewLiveModel(sess, archive, requiredFixes),
		history: NewHistoryModel(archive),
		help:    NewHelpModel(),
		snaps:   snaps,
	}
}

func waitForSnapshot(snaps <-chan session.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-snaps
		if !ok {
			return snapshotsClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// Init starts listening for snapshots
func (a *App) Init() tea.Cmd {
	return waitForSnapshot(a.snaps)
}

// Update handles messages
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		case "1":
			a.screen = ScreenLive
			return a, nil
		case "2":
			a.screen = ScreenHistory
			return a, a.history.Init()
		case "?":
			if a.screen != ScreenHelp {
				a.prevScreen = a.screen
			}
			a.screen = ScreenHelp
			return a, nil
		case "esc":
			if a.screen == ScreenHelp {
				a.screen = a.prevScreen
				return a, nil
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case snapshotMsg:
		a.live = a.live.withSnapshot(session.Snapshot(msg))
		return a, waitForSnapshot(a.snaps)

	case snapshotsClosedMsg:
		a.status = "Session stopped"
		return a, tea.Quit

	case statusMsg:
		if msg.err != nil {
			a.status = errorStyle.Render(fmt.Sprintf("Error: %v", msg.err))
		} else {
			a.status = successStyle.Render(msg.text)
		}
		return a, nil
	}

	var cmd tea.Cmd
	switch a.screen {
	case ScreenLive:
		var m tea.Model
		m, cmd = a.live.Update(msg)
		a.live = m.(LiveModel)
	case ScreenHistory:
		var m tea.Model
		m, cmd = a.history.Update(msg)
		a.history = m.(HistoryModel)
	case ScreenHelp:
		var m tea.Model
		m, cmd = a.help.Update(msg)
		a.help = m.(HelpModel)
	}

	return a, cmd
}

// View renders the app
func (a *App) View() string {
	header := headerStyle.Render("Regularity Tracker")
	nav := a.renderNav()

	var content string
	switch a.screen {
	case ScreenLive:
		content = a.live.View()
	case ScreenHistory:
		content = a.history.View()
	case ScreenHelp:
		content = a.help.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, nav, content, a.renderFooter())
}

func (a *App) renderNav() string {
	items := []struct {
		key    string
		label  string
		screen Screen
	}{
		{"1", "Live", ScreenLive},
		{"2", "History", ScreenHistory},
		{"?", "Help", ScreenHelp},
	}

	var nav string
	for i, item := range items {
		if i > 0 {
			nav += "  "
		}

		label := "[" + item.key + "] " + item.label
		if a.screen == item.screen {
			nav += navActiveStyle.Render(label)
		} else {
			nav += navInactiveStyle.Render(label)
		}
	}
	nav += "  " + navInactiveStyle.Render("[q] Quit")

	return navStyle.Render(nav)
}

func (a *App) renderFooter() string {
	if a.status != "" {
		return statusStyle.Render(a.status)
	}
	return ""
}
