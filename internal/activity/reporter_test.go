package activity

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// outbox mimics a connection that batches invocations until a flush.
type outbox struct {
	reporter *Reporter
	queued   int
	sent     []int
	err      error
	// beforeQueue runs inside Queue before the ping is appended.
	beforeQueue func()
}

func (o *outbox) Queue(immediate bool) error {
	if o.err != nil {
		return o.err
	}
	if o.beforeQueue != nil {
		o.beforeQueue()
	}
	o.queued++
	if immediate {
		return o.Flush()
	}
	return nil
}

func (o *outbox) Flush() error {
	if o.err != nil {
		return o.err
	}
	carried := o.queued > 0
	o.sent = append(o.sent, o.queued)
	o.queued = 0
	if o.reporter != nil {
		o.reporter.Flushed(carried)
	}
	return nil
}

func newTestReporter() (*Reporter, *outbox) {
	o := &outbox{}
	r := NewReporter(o)
	r.SetLogger(zerolog.Nop())
	o.reporter = r
	return r, o
}

func TestDeferredPingsCoalesce(t *testing.T) {
	r, o := newTestReporter()

	r.Ping(false)
	r.Ping(false)
	r.Ping(false)

	assert.Equal(t, 1, o.queued, "deferred pings coalesce into one invocation")
	assert.Empty(t, o.sent, "deferred pings wait for other traffic")
	assert.True(t, r.Pending())
}

func TestImmediateUpgradesPending(t *testing.T) {
	r, o := newTestReporter()

	r.Ping(false)
	r.Ping(true)

	assert.Equal(t, []int{1}, o.sent, "the pending ping is flushed, not duplicated")
	assert.False(t, r.Pending())
}

func TestImmediateWithoutPending(t *testing.T) {
	r, o := newTestReporter()

	r.Ping(true)
	r.Ping(true)

	assert.Equal(t, []int{1, 1}, o.sent)
	assert.False(t, r.Pending())
}

func TestNaturalTrafficClearsPending(t *testing.T) {
	r, o := newTestReporter()

	r.Ping(false)
	assert.NoError(t, o.Flush())
	assert.False(t, r.Pending())

	r.Ping(false)
	assert.Equal(t, 1, o.queued, "a new deferred ping is queued after the flush")
}

func TestAcknowledgedRearmsDeferredPing(t *testing.T) {
	r, o := newTestReporter()

	r.Ping(true)
	r.Acknowledged()

	assert.True(t, r.Pending())
	assert.Equal(t, 1, o.queued)
	assert.Equal(t, []int{1}, o.sent)
}

func TestTransportErrorDoesNotStickPending(t *testing.T) {
	r, o := newTestReporter()
	o.err = errors.New("connection closed")

	r.Ping(false)
	assert.False(t, r.Pending())

	o.err = nil
	r.Ping(false)
	assert.Equal(t, 1, o.queued)
}

func TestTrafficWithoutPingKeepsPending(t *testing.T) {
	r, o := newTestReporter()

	// Other traffic is written between the reporter marking the ping pending
	// and the ping landing in the outbox.
	o.beforeQueue = func() {
		o.beforeQueue = nil
		assert.NoError(t, o.Flush())
	}
	r.Ping(false)

	assert.True(t, r.Pending(), "the queued ping has not been written yet")
	assert.Equal(t, 1, o.queued)

	r.Ping(false)
	assert.Equal(t, 1, o.queued, "still coalesced")

	assert.NoError(t, o.Flush())
	assert.False(t, r.Pending())
}
