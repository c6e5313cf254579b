//go:build !windows

package main

import (
	"os"
	"syscall"
)

// getSignalsForPlatform lists the signals that end the client. SIGHUP covers
// a closed terminal.
func getSignalsForPlatform() []os.Signal {
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGHUP,
		syscall.SIGTSTP,
	}
}

func isSIGTSTPForPlatform(sig os.Signal) bool {
	return sig == syscall.SIGTSTP
}
