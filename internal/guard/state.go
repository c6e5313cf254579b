package guard

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the step of the countdown the engine is in.
type Phase int

const (
	// PhaseIdle means no countdown runs: not started, degenerate config, or
	// waiting for the server to acknowledge a forced ping.
	PhaseIdle Phase = iota
	// PhaseWaiting means one scheduled timer is pending.
	PhaseWaiting
	// PhaseWarning means the notification is up and the minute tick runs.
	PhaseWarning
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseWaiting:
		return "Waiting"
	case PhaseWarning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// ExpiryPolicy decides when the minute tick gives up on the user and forces
// a ping.
type ExpiryPolicy int

const (
	// PolicyOnTime forces the ping exactly WarningPeriodMinutes after the
	// warning appeared, which is the moment the session times out.
	PolicyOnTime ExpiryPolicy = iota
	// PolicyGraceMinute lets the message count down to 0 and forces the ping
	// one minute after the session should have timed out.
	PolicyGraceMinute
)

// floor is the lowest minutesLeft that is still decremented.
func (p ExpiryPolicy) floor() int {
	if p == PolicyGraceMinute {
		return 0
	}
	return 1
}

func (p ExpiryPolicy) String() string {
	switch p {
	case PolicyOnTime:
		return "on-time"
	case PolicyGraceMinute:
		return "grace"
	default:
		return "unknown"
	}
}

// ParseExpiryPolicy parses the names returned by ExpiryPolicy.String.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "on-time", "ontime":
		return PolicyOnTime, nil
	case "grace", "grace-minute":
		return PolicyGraceMinute, nil
	}
	return PolicyOnTime, fmt.Errorf("unknown expiry policy %q (want on-time or grace)", s)
}

// Snapshot is a read-only copy of the engine state.
type Snapshot struct {
	Running     bool
	Phase       Phase
	MinutesLeft int
	Config      SessionConfig
	// Next is when the pending timer or the next minute tick fires. Zero when
	// nothing is scheduled.
	Next time.Time
}
