package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stigoleg/session-guard/internal/guard"
	"github.com/stigoleg/session-guard/internal/wire"
)

// peer is the server end of a test connection.
type peer struct {
	t       *testing.T
	ws      chan *websocket.Conn
	batches chan wire.BatchPayload
}

func newPeer(t *testing.T) (*peer, *httptest.Server) {
	t.Helper()
	p := &peer{
		t:       t,
		ws:      make(chan *websocket.Conn, 1),
		batches: make(chan wire.BatchPayload, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.ws <- ws
		for {
			var msg wire.Message
			if err := ws.ReadJSON(&msg); err != nil {
				close(p.batches)
				return
			}
			var b wire.BatchPayload
			if err := msg.Decode(&b); err == nil {
				p.batches <- b
			}
		}
	}))
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *peer) conn() *websocket.Conn {
	p.t.Helper()
	select {
	case ws := <-p.ws:
		p.ws <- ws
		return ws
	case <-time.After(2 * time.Second):
		p.t.Fatal("no websocket connection")
		return nil
	}
}

func (p *peer) send(typ wire.MessageType, payload any) {
	p.t.Helper()
	msg, err := wire.New(typ, payload)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn().WriteJSON(msg))
}

func (p *peer) nextBatch() wire.BatchPayload {
	p.t.Helper()
	select {
	case b, ok := <-p.batches:
		require.True(p.t, ok, "connection closed")
		return b
	case <-time.After(2 * time.Second):
		p.t.Fatal("no batch received")
		return wire.BatchPayload{}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connect(t *testing.T, srv *httptest.Server) (*Client, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()
	c, err := Connect(ctx, Options{URL: wsURL(srv), Logger: &logger})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})
	return c, cancel, runErr
}

func waitEvent(t *testing.T, c *Client, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "events closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return Event{}
		}
	}
}

func intPtr(v int) *int { return &v }

func TestFirstStateStartsEngine(t *testing.T) {
	p, srv := newPeer(t)
	c, _, _ := connect(t, srv)

	assert.False(t, c.Engine().Snapshot().Running)

	p.send(wire.MsgState, wire.StatePayload{
		SessionTimeoutSeconds: intPtr(600),
		WarningPeriodMinutes:  intPtr(2),
	})
	waitEvent(t, c, EventState)

	snap := c.Engine().Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, guard.PhaseWaiting, snap.Phase)
	assert.Equal(t, 600, snap.Config.TimeoutSeconds)
	assert.Equal(t, guard.DefaultWarningTemplate, snap.Config.WarningTemplate)
	assert.True(t, c.Reporter().Pending(), "first state arms a deferred ping")
}

func TestDeferredPingRidesWithAction(t *testing.T) {
	p, srv := newPeer(t)
	c, _, _ := connect(t, srv)

	p.send(wire.MsgState, wire.StatePayload{SessionTimeoutSeconds: intPtr(600)})
	waitEvent(t, c, EventState)

	require.NoError(t, c.Action("save"))

	b := p.nextBatch()
	require.Len(t, b.Invocations, 2)
	assert.Equal(t, wire.Ping(), b.Invocations[0])
	assert.Equal(t, wire.Action("save"), b.Invocations[1])
	assert.False(t, c.Reporter().Pending())

	// Without a pending ping an action goes out alone.
	require.NoError(t, c.Action("load"))
	b = p.nextBatch()
	assert.Equal(t, []wire.Invocation{wire.Action("load")}, b.Invocations)
}

func TestPongRearmsPing(t *testing.T) {
	p, srv := newPeer(t)
	c, _, _ := connect(t, srv)

	p.send(wire.MsgState, wire.StatePayload{
		SessionTimeoutSeconds: intPtr(600),
		WarningPeriodMinutes:  intPtr(2),
	})
	waitEvent(t, c, EventState)
	require.NoError(t, c.Action("save"))
	p.nextBatch()
	require.False(t, c.Reporter().Pending())

	p.send(wire.MsgPong, nil)
	waitEvent(t, c, EventPong)

	assert.True(t, c.Reporter().Pending())
	assert.Equal(t, guard.PhaseWaiting, c.Engine().Snapshot().Phase)
}

func TestLaterStateReconfigures(t *testing.T) {
	p, srv := newPeer(t)
	c, _, _ := connect(t, srv)

	p.send(wire.MsgState, wire.StatePayload{SessionTimeoutSeconds: intPtr(600)})
	waitEvent(t, c, EventState)

	keep := true
	p.send(wire.MsgState, wire.StatePayload{KeepAlive: &keep})
	waitEvent(t, c, EventState)

	snap := c.Engine().Snapshot()
	assert.True(t, snap.Config.KeepAlive)
	assert.Equal(t, 600, snap.Config.TimeoutSeconds)
}

func TestAckAndErrorEvents(t *testing.T) {
	p, srv := newPeer(t)
	c, _, _ := connect(t, srv)

	p.send(wire.MsgAck, wire.AckPayload{Name: "save"})
	ev := waitEvent(t, c, EventAck)
	assert.Equal(t, "save", ev.Name)

	p.send(wire.MsgError, wire.ErrorPayload{Message: "bad request"})
	ev = waitEvent(t, c, EventServerError)
	assert.Equal(t, "bad request", ev.Name)
}

func TestExpiredStopsEngine(t *testing.T) {
	p, srv := newPeer(t)
	c, _, _ := connect(t, srv)

	p.send(wire.MsgState, wire.StatePayload{SessionTimeoutSeconds: intPtr(600)})
	waitEvent(t, c, EventState)

	p.send(wire.MsgExpired, nil)
	waitEvent(t, c, EventExpired)

	assert.False(t, c.Engine().Snapshot().Running)
}

func TestRunEndsOnCancel(t *testing.T) {
	_, srv := newPeer(t)
	c, cancel, runErr := connect(t, srv)

	cancel()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	for range c.Events() {
	}
	assert.ErrorIs(t, c.Action("save"), ErrClosed)
}

func TestRunEndsWhenServerDrops(t *testing.T) {
	p, srv := newPeer(t)
	c, _, runErr := connect(t, srv)

	require.NoError(t, p.conn().Close())

	select {
	case err := <-runErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	ev, ok := <-c.Events()
	require.True(t, ok)
	assert.Equal(t, EventDisconnected, ev.Kind)
	assert.Error(t, ev.Err)
}

func TestDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Connect(context.Background(), Options{URL: wsURL(srv)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFlushHookReportsCarriedPing(t *testing.T) {
	p, srv := newPeer(t)
	conn, err := Dial(context.Background(), nil, wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()

	var carried []bool
	conn.OnFlush(func(ping bool) { carried = append(carried, ping) })

	require.NoError(t, conn.Send(wire.Action("save")))
	p.nextBatch()
	require.NoError(t, conn.Queue(false))
	require.NoError(t, conn.Send(wire.Action("load")))
	p.nextBatch()
	require.NoError(t, conn.Flush(), "an empty outbox is not written")

	assert.Equal(t, []bool{false, true}, carried)
}
