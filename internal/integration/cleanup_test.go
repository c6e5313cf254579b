package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stigoleg/session-guard/internal/client"
	"github.com/stigoleg/session-guard/internal/guard"
)

func (e *env) waitRun(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.runErr:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestCloseHidesWarningAndDisconnects(t *testing.T) {
	e := newEnv(t, 5*time.Minute, defaults(), guard.PolicyOnTime)

	var order []string
	e.client.OnClose("presenter", func() error {
		order = append(order, "presenter")
		return nil
	})

	e.advance(3 * time.Minute)
	require.True(t, e.toast.Visible())
	require.Eventually(t, func() bool { return e.server.Connections() == 1 }, waitTimeout, 10*time.Millisecond)

	require.NoError(t, e.client.Close())
	assert.Equal(t, []string{"presenter"}, order)
	assert.False(t, e.toast.Visible())
	assert.False(t, e.client.Snapshot().Running)

	assert.NoError(t, e.waitRun(t))
	assert.Eventually(t, func() bool { return e.server.Connections() == 0 }, waitTimeout, 10*time.Millisecond)

	// Closing twice is harmless.
	assert.NoError(t, e.client.Close())
	assert.ErrorIs(t, e.client.Action("save"), client.ErrClosed)
}

func TestCancelStopsClient(t *testing.T) {
	e := newEnv(t, 5*time.Minute, defaults(), guard.PolicyOnTime)

	e.cancel()
	assert.NoError(t, e.waitRun(t))

	assert.False(t, e.client.Snapshot().Running)
	assert.ErrorIs(t, e.client.Action("save"), client.ErrClosed)
	assert.Eventually(t, func() bool { return e.server.Connections() == 0 }, waitTimeout, 10*time.Millisecond)
}

func TestServerShutdownDisconnectsClient(t *testing.T) {
	e := newEnv(t, 5*time.Minute, defaults(), guard.PolicyOnTime)

	e.advance(3 * time.Minute)
	require.True(t, e.toast.Visible())

	e.server.Close()
	e.waitFor(t, client.EventDisconnected)
	_ = e.waitRun(t)

	assert.False(t, e.client.Snapshot().Running)
	assert.False(t, e.toast.Visible(), "a stopped engine takes its warning down")
}

func TestSessionSurvivesReconnect(t *testing.T) {
	e := newEnv(t, 5*time.Minute, defaults(), guard.PolicyOnTime)
	require.NoError(t, e.client.Close())
	require.NoError(t, e.waitRun(t))

	e.advance(2 * time.Minute)
	again := e.reconnect(t)

	assert.Equal(t, e.id, again.id, "the cookie resumes the session")
	assert.Equal(t, e.at(2*time.Minute), e.session(t).LastAccess)
	assert.Equal(t, 1, e.store.Len())
}
