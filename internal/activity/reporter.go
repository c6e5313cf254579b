// Package activity reports user activity to the server as coalesced pings.
package activity

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport carries ping invocations to the server.
type Transport interface {
	// Queue adds a ping to the outgoing traffic. When immediate is false the
	// ping waits for the next exchange that happens anyway; when true the
	// outgoing traffic is written now.
	Queue(immediate bool) error
	// Flush writes whatever traffic is pending.
	Flush() error
}

// Reporter turns ping requests into at most one pending ping invocation.
type Reporter struct {
	mu        sync.Mutex
	transport Transport
	logger    zerolog.Logger

	// pending is set while a deferred ping waits in the transport outbox.
	// Flushed clears it from the transport's goroutine, so it is atomic. It is
	// set before Queue so a batch carrying the ping always finds it set.
	pending atomic.Bool
}

// NewReporter creates a Reporter writing to t.
func NewReporter(t Transport) *Reporter {
	return &Reporter{
		transport: t,
		logger:    log.Logger.With().Str("component", "activity").Logger(),
	}
}

// SetLogger replaces the reporter's logger.
func (r *Reporter) SetLogger(l zerolog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Ping reports activity. A deferred ping while one is already pending is
// coalesced; an immediate ping while one is pending flushes it.
func (r *Reporter) Ping(immediate bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case !r.pending.Load():
		r.pending.Store(!immediate)
		if err := r.transport.Queue(immediate); err != nil {
			r.pending.Store(false)
			r.logger.Warn().Err(err).Bool("immediate", immediate).Msg("ping failed")
			return
		}
		r.logger.Debug().Bool("immediate", immediate).Msg("ping queued")
	case immediate:
		r.pending.Store(false)
		if err := r.transport.Flush(); err != nil {
			r.logger.Warn().Err(err).Msg("flushing pending ping failed")
			return
		}
		r.logger.Debug().Msg("pending ping flushed")
	default:
		r.logger.Debug().Msg("ping coalesced")
	}
}

// Pending reports whether a deferred ping waits for outgoing traffic.
func (r *Reporter) Pending() bool {
	return r.pending.Load()
}

// Flushed must be called by the transport after it wrote its outbox.
// Only a batch that carried a ping clears the pending flag; traffic written
// while a ping is still being queued leaves it set.
func (r *Reporter) Flushed(carriedPing bool) {
	if carriedPing {
		r.pending.Store(false)
	}
}

// Acknowledged handles the server's answer to a ping: the next exchange
// should carry a ping again so any later activity keeps resetting the clock.
func (r *Reporter) Acknowledged() {
	r.Ping(false)
}
