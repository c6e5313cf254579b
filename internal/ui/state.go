package ui

// state is the connection state shown by the TUI.
type state int

const (
	stateConnecting state = iota
	stateRunning
	stateExpired
	stateDisconnected
)

func (s state) String() string {
	switch s {
	case stateConnecting:
		return "Connecting"
	case stateRunning:
		return "Running"
	case stateExpired:
		return "Expired"
	case stateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
