package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stigoleg/session-guard/internal/client"
	"github.com/stigoleg/session-guard/internal/guard"
	"github.com/stigoleg/session-guard/internal/wire"
)

const refreshInterval = time.Second

type (
	// eventMsg carries a client event.
	eventMsg client.Event
	// eventsClosedMsg is sent once the client stopped reading.
	eventsClosedMsg struct{}
	// statusMsg carries an engine snapshot. Ticking snapshots schedule the
	// next one.
	statusMsg struct {
		snap    guard.Snapshot
		at      time.Time
		ticking bool
	}
	// toastMsg asks for a redraw after the toast changed.
	toastMsg struct{}
	// actionDoneMsg reports a sent action.
	actionDoneMsg struct {
		name string
		err  error
	}
)

// Update handles messages and updates the model accordingly.
func Update(msg tea.Msg, m Model) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return handleKey(msg, m)

	case eventMsg:
		m = handleEvent(client.Event(msg), m)
		return m, tea.Batch(waitForEvent(m.Events), snapshot(m.Session))

	case eventsClosedMsg:
		if m.State != stateExpired {
			m.State = stateDisconnected
		}
		return m, nil

	case statusMsg:
		m.Status = msg.snap
		m.Now = msg.at
		if msg.ticking {
			return m, refresh(m.Session)
		}
		return m, nil

	case toastMsg:
		return m, snapshot(m.Session)

	case actionDoneMsg:
		if msg.err != nil {
			m.ErrorMessage = fmt.Sprintf("sending %s failed: %v", msg.name, msg.err)
		}
		return m, nil
	}

	return m, nil
}

func handleKey(msg tea.KeyMsg, m Model) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.ToggleHelp):
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	if m.State != stateRunning || m.ShowHelp {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Activity):
		m.ErrorMessage = ""
		return m, sendAction(m.Session, ActivityAction)
	case key.Matches(msg, m.keys.KeepAlive):
		m.ErrorMessage = ""
		return m, sendAction(m.Session, wire.ActionToggleKeepAlive)
	case key.Matches(msg, m.keys.Dismiss):
		if m.Toast != nil && m.Toast.Dismiss() {
			m.LastEvent = "warning dismissed"
		}
		return m, nil
	}
	return m, nil
}

func handleEvent(ev client.Event, m Model) Model {
	switch ev.Kind {
	case client.EventState:
		if m.State == stateConnecting {
			m.State = stateRunning
		}
		m.LastEvent = "session settings received"
	case client.EventPong:
		m.LastEvent = "activity acknowledged"
	case client.EventAck:
		m.LastEvent = fmt.Sprintf("action %q acknowledged", ev.Name)
	case client.EventExpired:
		m.State = stateExpired
		m.LastEvent = "session expired"
	case client.EventServerError:
		m.ErrorMessage = ev.Name
	case client.EventDisconnected:
		if m.State != stateExpired {
			m.State = stateDisconnected
		}
		if ev.Err != nil {
			m.ErrorMessage = ev.Err.Error()
		}
	}
	return m
}

func waitForEvent(events <-chan client.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// refresh takes a snapshot every refreshInterval. Snapshots are taken in the
// command goroutine since they wait for the engine.
func refresh(s Session) tea.Cmd {
	if s == nil {
		return nil
	}
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return statusMsg{snap: s.Snapshot(), at: t, ticking: true}
	})
}

func snapshot(s Session) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		return statusMsg{snap: s.Snapshot(), at: time.Now()}
	}
}

func sendAction(s Session, name string) tea.Cmd {
	if s == nil {
		return nil
	}
	return func() tea.Msg {
		return actionDoneMsg{name: name, err: s.Action(name)}
	}
}
