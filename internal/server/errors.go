package server

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("server: session not found")
	// ErrSessionExpired is returned for a session that was inactive for its
	// whole maximum inactive interval.
	ErrSessionExpired = errors.New("server: session expired")

	// ErrNoSessionContext is returned when a guard is attached without a
	// session to read the timeout from. The host integration is broken.
	ErrNoSessionContext = errors.New("server: guard attached without a session context")
	// ErrNonPositiveTimeSpan rejects a warning period of zero or less.
	ErrNonPositiveTimeSpan = errors.New("server: time span must be greater than zero")
	// ErrInvalidTemplate rejects a warning template without a placeholder.
	ErrInvalidTemplate = errors.New("server: warning template must contain the '_' placeholder")
)
