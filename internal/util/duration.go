// Package util holds small parsing helpers shared by the command line and
// server configuration.
package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const durationHelp = `Valid formats:
  30        plain number of minutes
  45m       minutes
  2h30m     hours and minutes
  90s       seconds`

// ParseDuration accepts a plain number of minutes or a Go duration string.
// Negative durations are rejected.
func ParseDuration(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)

	if minutes, err := strconv.Atoi(input); err == nil {
		if minutes < 0 {
			return 0, durationError(input)
		}
		return time.Duration(minutes) * time.Minute, nil
	}

	duration, err := time.ParseDuration(input)
	if err != nil || duration < 0 {
		return 0, durationError(input)
	}
	return duration, nil
}

func durationError(input string) error {
	return fmt.Errorf("Invalid duration format: %q\n\n%s", input, durationHelp)
}
