//go:build windows

package main

import (
	"os"
	"syscall"
)

// getSignalsForPlatform lists the signals that end the client.
func getSignalsForPlatform() []os.Signal {
	return []os.Signal{
		os.Interrupt,
		syscall.SIGTERM,
	}
}

// Windows has no job control.
func isSIGTSTPForPlatform(os.Signal) bool {
	return false
}
