package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	args   []interface{}
}

// fakeObject answers Notify with increasing ids.
type fakeObject struct {
	dbus.BusObject

	mu     sync.Mutex
	calls  []call
	nextID uint32
	err    error
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call{method: method, args: args})
	if o.err != nil {
		return &dbus.Call{Err: o.err}
	}
	if method == dbusInterface+".Notify" {
		replaces := args[1].(uint32)
		if replaces == 0 {
			o.nextID++
			replaces = o.nextID
		}
		return &dbus.Call{Body: []interface{}{replaces}}
	}
	return &dbus.Call{}
}

func (o *fakeObject) last() call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[len(o.calls)-1]
}

func (o *fakeObject) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

func closedSignal(id, reason uint32) *dbus.Signal {
	return &dbus.Signal{Name: signalClosed, Path: dbusPath, Body: []interface{}{id, reason}}
}

func TestDesktopShowUpdateHide(t *testing.T) {
	obj := &fakeObject{}
	d := newDesktop(nil, obj, "session-guard", "Session timeout")

	d.Show("5 minutes")
	require.True(t, d.Visible())
	c := obj.last()
	assert.Equal(t, dbusInterface+".Notify", c.method)
	assert.Equal(t, uint32(0), c.args[1])
	assert.Equal(t, "5 minutes", c.args[4])
	assert.Equal(t, int32(0), c.args[7], "the notification never times out on its own")

	d.Update("4 minutes")
	c = obj.last()
	assert.Equal(t, uint32(1), c.args[1], "updates replace the shown notification")
	assert.Equal(t, "4 minutes", c.args[4])

	d.Hide()
	assert.False(t, d.Visible())
	c = obj.last()
	assert.Equal(t, dbusInterface+".CloseNotification", c.method)
	assert.Equal(t, uint32(1), c.args[0])

	// Hidden notifications are neither closed again nor updated.
	n := obj.count()
	d.Hide()
	d.Update("3 minutes")
	assert.Equal(t, n, obj.count())
}

func TestDesktopDismissedByUser(t *testing.T) {
	obj := &fakeObject{}
	d := newDesktop(nil, obj, "session-guard", "Session timeout")

	var reasons []CloseReason
	d.OnClose(func(r CloseReason) { reasons = append(reasons, r) })

	d.Show("2 minutes")

	d.handleSignal(closedSignal(99, uint32(ReasonDismissed)))
	assert.True(t, d.Visible(), "signals for other notifications are ignored")

	d.handleSignal(closedSignal(1, uint32(ReasonDismissed)))
	assert.False(t, d.Visible())
	assert.Equal(t, []CloseReason{ReasonDismissed}, reasons)
	assert.Equal(t, "dismissed", reasons[0].String())
	assert.Equal(t, "undefined", CloseReason(9).String())

	d.handleSignal(closedSignal(1, uint32(ReasonClosed)))
	assert.Len(t, reasons, 1)
}

func TestDesktopIgnoresMalformedSignals(t *testing.T) {
	d := newDesktop(nil, &fakeObject{}, "session-guard", "Session timeout")
	d.Show("1 minutes")

	d.handleSignal(nil)
	d.handleSignal(&dbus.Signal{Name: "org.example.Other", Body: []interface{}{uint32(1), uint32(2)}})
	d.handleSignal(&dbus.Signal{Name: signalClosed, Body: []interface{}{"1"}})
	d.handleSignal(&dbus.Signal{Name: signalClosed, Body: []interface{}{"1", uint32(2)}})

	assert.True(t, d.Visible())
}

func TestDesktopNotifyFailure(t *testing.T) {
	obj := &fakeObject{err: errors.New("no service")}
	d := newDesktop(nil, obj, "session-guard", "Session timeout")

	d.Show("5 minutes")
	assert.False(t, d.Visible())
}

func TestDesktopClose(t *testing.T) {
	obj := &fakeObject{}
	d := newDesktop(nil, obj, "session-guard", "Session timeout")
	go d.listen()

	d.Show("5 minutes")
	require.NoError(t, d.Close())
	assert.False(t, d.Visible())
	require.NoError(t, d.Close())
}

func TestDesktopSessionBus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test in short mode")
	}
	d, err := NewDesktop("session-guard", "Session timeout")
	if err != nil {
		t.Skipf("no session bus: %v", err)
	}
	defer d.Close()

	d.Show("session-guard test notification")
	if !d.Visible() {
		t.Skip("no notification service on the session bus")
	}
	d.Hide()
	assert.False(t, d.Visible())
}
