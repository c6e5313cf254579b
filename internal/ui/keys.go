package ui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines key bindings for the session view.
type KeyMap struct {
	Quit       key.Binding
	ToggleHelp key.Binding

	// Running
	Activity  key.Binding
	Dismiss   key.Binding
	KeepAlive key.Binding
}

// DefaultKeys returns the default key bindings for the application.
func DefaultKeys() KeyMap {
	return KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		ToggleHelp: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "toggle help"),
		),
		Activity: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "send action"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x", "enter"),
			key.WithHelp("x/enter", "dismiss warning"),
		),
		KeepAlive: key.NewBinding(
			key.WithKeys("k"),
			key.WithHelp("k", "toggle keep-alive"),
		),
	}
}

// NewHelpModel returns a configured help model.
func NewHelpModel() help.Model {
	return help.New()
}

// stateKeyMap adapts bindings to the current UI state for contextual help.
type stateKeyMap struct {
	keys  KeyMap
	state state
}

// ForState returns a contextual key map implementing help.KeyMap for the given state.
func (k KeyMap) ForState(s state) help.KeyMap {
	return stateKeyMap{keys: k, state: s}
}

// ShortHelp implements help.KeyMap.
func (s stateKeyMap) ShortHelp() []key.Binding {
	if s.state == stateRunning {
		return []key.Binding{s.keys.Activity, s.keys.Dismiss, s.keys.KeepAlive, s.keys.ToggleHelp, s.keys.Quit}
	}
	return []key.Binding{s.keys.ToggleHelp, s.keys.Quit}
}

// FullHelp implements help.KeyMap.
func (s stateKeyMap) FullHelp() [][]key.Binding {
	if s.state == stateRunning {
		return [][]key.Binding{{s.keys.Activity, s.keys.Dismiss, s.keys.KeepAlive}, {s.keys.ToggleHelp, s.keys.Quit}}
	}
	return [][]key.Binding{{s.keys.ToggleHelp, s.keys.Quit}}
}
