package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stigoleg/session-guard/internal/client"
	"github.com/stigoleg/session-guard/internal/guard"
)

// ActivityAction is the action sent by the activity key.
const ActivityAction = "activity"

// Session is what the TUI needs from a connected client.
type Session interface {
	Snapshot() guard.Snapshot
	Action(name string) error
}

// Model holds the current state of the UI.
type Model struct {
	State        state
	Session      Session
	Events       <-chan client.Event
	Toast        *Toast
	Status       guard.Snapshot
	Now          time.Time
	URL          string
	LastEvent    string
	ErrorMessage string
	ShowHelp     bool
	Width        int

	version string
	keys    KeyMap
	help    help.Model
}

// InitialModel returns the model of a freshly connected client. toast may be
// nil when warnings are shown elsewhere.
func InitialModel(session Session, events <-chan client.Event, toast *Toast) Model {
	return Model{
		State:   stateConnecting,
		Session: session,
		Events:  events,
		Toast:   toast,
		Now:     time.Now(),
		keys:    DefaultKeys(),
		help:    NewHelpModel(),
	}
}

// SetVersion sets the version shown in the help view.
func (m *Model) SetVersion(v string) {
	m.version = v
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.Events), refresh(m.Session))
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	newModel, cmd := Update(msg, m)
	return newModel, cmd
}

// View implements tea.Model
func (m Model) View() string {
	return View(m)
}

// TimeToNext returns how long until the engine's next scheduled event, or
// zero when nothing is scheduled.
func (m Model) TimeToNext() time.Duration {
	if m.Status.Next.IsZero() {
		return 0
	}
	remaining := m.Status.Next.Sub(m.Now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
