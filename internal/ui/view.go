package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stigoleg/session-guard/internal/guard"
)

const minWidth = 60

// View renders the current state of the model to a string.
func View(m Model) string {
	if m.ShowHelp {
		return helpView(m)
	}

	var b strings.Builder

	if toast := toastView(m); toast != "" {
		b.WriteString(toast)
		b.WriteString("\n\n")
	}

	switch m.State {
	case stateConnecting:
		b.WriteString(connectingView(m))
	case stateRunning:
		b.WriteString(runningView(m))
	case stateExpired:
		b.WriteString(expiredView(m))
	case stateDisconnected:
		b.WriteString(disconnectedView(m))
	}

	if m.ErrorMessage != "" {
		b.WriteString("\n\n" + Current.Error.Render(m.ErrorMessage))
	}

	b.WriteString("\n\n" + Current.Help.Render(m.help.View(m.keys.ForState(m.State))))
	return b.String()
}

func toastView(m Model) string {
	if m.Toast == nil || !m.Toast.Visible() {
		return ""
	}
	width := max(m.Width, minWidth)
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, Current.Toast.Render(m.Toast.Text()))
}

func connectingView(m Model) string {
	var b strings.Builder
	b.WriteString(Current.Title.Render("Session Guard"))
	b.WriteString("\n\n")
	b.WriteString(Current.Inactive.Render("Waiting for session settings from " + m.URL))
	return b.String()
}

func runningView(m Model) string {
	var b strings.Builder

	b.WriteString(Current.Title.Render("Session Guard"))
	b.WriteString("\n\n")

	cfg := m.Status.Config
	row(&b, "Server", m.URL)
	row(&b, "Session timeout", timeoutText(cfg))
	row(&b, "Warning period", fmt.Sprintf("%d min", cfg.WarningPeriodMinutes))
	if cfg.KeepAlive {
		b.WriteString(Current.Label.Render("Keep-alive") + Current.Active.Render("on") + "\n")
	} else {
		b.WriteString(Current.Label.Render("Keep-alive") + Current.Inactive.Render("off") + "\n")
	}
	row(&b, "Countdown", phaseText(m.Status))
	if d := m.TimeToNext(); d > 0 {
		row(&b, "Next check", "in "+clockText(d))
	}

	if m.LastEvent != "" {
		b.WriteString("\n" + Current.Event.Render(m.LastEvent))
	}
	return b.String()
}

func expiredView(m Model) string {
	var b strings.Builder
	b.WriteString(Current.Title.Render("Session Guard"))
	b.WriteString("\n\n")
	b.WriteString(Current.Error.Render("Your session has expired."))
	b.WriteString("\n")
	b.WriteString(Current.Inactive.Render("Restart the client to begin a new session."))
	return b.String()
}

func disconnectedView(m Model) string {
	var b strings.Builder
	b.WriteString(Current.Title.Render("Session Guard"))
	b.WriteString("\n\n")
	b.WriteString(Current.Inactive.Render("Disconnected from " + m.URL))
	return b.String()
}

func row(b *strings.Builder, label, value string) {
	b.WriteString(Current.Label.Render(label))
	b.WriteString(Current.Value.Render(value))
	b.WriteString("\n")
}

func timeoutText(cfg guard.SessionConfig) string {
	if cfg.TimeoutSeconds == guard.UnknownTimeout {
		return "unknown"
	}
	if cfg.TimeoutSeconds < 0 {
		return "never"
	}
	return fmt.Sprintf("%d min", cfg.TimeoutMinutes())
}

func phaseText(s guard.Snapshot) string {
	if !s.Running {
		return "stopped"
	}
	switch s.Phase {
	case guard.PhaseWaiting:
		if s.Config.KeepAlive {
			return "keeping session alive"
		}
		return "waiting"
	case guard.PhaseWarning:
		return fmt.Sprintf("warning, %d min left", s.MinutesLeft)
	default:
		return "disabled"
	}
}

func clockText(d time.Duration) string {
	d = d.Round(time.Second)
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func helpView(m Model) string {
	help := `Session Guard Help

Warns before your session on the server times out, and keeps it alive
when the server asks for it.

Usage:
  sessionguard [flags]

Flags:
  -url string        Websocket URL of the server
  -presenter string  Where warnings appear: tui or desktop
  -policy string     When the final ping fires: on-time or grace
  -log string        Log file
  -v, --version      Show version information
  -h, --help         Show help message

Keys:
  a          : Send an action (counts as activity)
  x/Enter    : Dismiss the warning (counts as activity)
  k          : Toggle keep-alive on the server
  h          : Show this help
  q/Esc      : Quit`

	if m.version != "" {
		help += "\n\nVersion " + m.version
	}
	help += "\n\nPress 'h' to close help"

	return Current.Help.Render(help)
}
