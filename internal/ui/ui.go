package ui

import tea "github.com/charmbracelet/bubbletea"

// NewProgram creates the Bubble Tea program for m and redraws it whenever
// the toast changes.
func NewProgram(m Model, opts ...tea.ProgramOption) *tea.Program {
	p := tea.NewProgram(m, opts...)
	if m.Toast != nil {
		m.Toast.OnChange(func() { p.Send(toastMsg{}) })
	}
	return p
}
