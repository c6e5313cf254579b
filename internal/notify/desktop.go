// Package notify shows the session timeout warning as a desktop notification
// through the freedesktop notification service on the session bus.
package notify

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	dbusDest      = "org.freedesktop.Notifications"
	dbusPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusInterface = "org.freedesktop.Notifications"

	signalClosed = dbusInterface + ".NotificationClosed"

	urgencyCritical = byte(2)
)

// CloseReason is why the notification service closed a notification.
type CloseReason uint32

const (
	ReasonExpired   CloseReason = 1
	ReasonDismissed CloseReason = 2
	ReasonClosed    CloseReason = 3
	ReasonUndefined CloseReason = 4
)

func (r CloseReason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonDismissed:
		return "dismissed"
	case ReasonClosed:
		return "closed"
	default:
		return "undefined"
	}
}

// Desktop presents the warning as a persistent desktop notification. A
// notification the user closes counts as dismissed.
type Desktop struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	summary string

	mu      sync.Mutex
	id      uint32
	visible bool
	onClose func(CloseReason)

	signals chan *dbus.Signal
	done    chan struct{}
	once    sync.Once
}

// NewDesktop connects to the session bus and subscribes to closed
// notifications.
func NewDesktop(appName, summary string) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	d := newDesktop(conn, conn.Object(dbusDest, dbusPath), appName, summary)

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(dbusPath),
		dbus.WithMatchInterface(dbusInterface),
		dbus.WithMatchMember("NotificationClosed"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register NotificationClosed signal: %w", err)
	}

	conn.Signal(d.signals)
	go d.listen()
	return d, nil
}

func newDesktop(conn *dbus.Conn, obj dbus.BusObject, appName, summary string) *Desktop {
	return &Desktop{
		conn:    conn,
		obj:     obj,
		appName: appName,
		summary: summary,
		signals: make(chan *dbus.Signal, 8),
		done:    make(chan struct{}),
	}
}

// OnClose registers fn to run when the service closes the current
// notification.
func (d *Desktop) OnClose(fn func(CloseReason)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = fn
}

// Show implements guard.Presenter.
func (d *Desktop) Show(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifyLocked(text)
}

// Update replaces the body of a visible notification. It does not bring a
// dismissed one back.
func (d *Desktop) Update(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.visible {
		return
	}
	d.notifyLocked(text)
}

// Hide closes the notification.
func (d *Desktop) Hide() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.visible {
		return
	}
	d.visible = false
	if err := d.obj.Call(dbusInterface+".CloseNotification", 0, d.id).Err; err != nil {
		log.Warn().Err(err).Uint32("id", d.id).Msg("notify: closing notification failed")
	}
}

// Visible implements guard.Presenter.
func (d *Desktop) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

// Close hides the notification and releases the bus connection.
func (d *Desktop) Close() error {
	var err error
	d.once.Do(func() {
		d.Hide()
		close(d.done)
		if d.conn == nil {
			return
		}
		d.conn.RemoveSignal(d.signals)
		err = errors.Join(
			d.conn.RemoveMatchSignal(
				dbus.WithMatchObjectPath(dbusPath),
				dbus.WithMatchInterface(dbusInterface),
				dbus.WithMatchMember("NotificationClosed"),
			),
			d.conn.Close(),
		)
	})
	return err
}

func (d *Desktop) notifyLocked(text string) {
	hints := map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgencyCritical)}

	var id uint32
	err := d.obj.Call(dbusInterface+".Notify", 0,
		d.appName, d.id, "", d.summary, text, []string{}, hints, int32(0),
	).Store(&id)
	if err != nil {
		log.Warn().Err(err).Msg("notify: showing notification failed")
		return
	}
	d.id = id
	d.visible = true
}

func (d *Desktop) listen() {
	for {
		select {
		case <-d.done:
			return
		case s, ok := <-d.signals:
			if !ok {
				return
			}
			d.handleSignal(s)
		}
	}
}

func (d *Desktop) handleSignal(s *dbus.Signal) {
	if s == nil || s.Name != signalClosed || len(s.Body) < 2 {
		return
	}
	id, ok := s.Body[0].(uint32)
	if !ok {
		return
	}
	reason, _ := s.Body[1].(uint32)

	d.mu.Lock()
	if id != d.id || !d.visible {
		d.mu.Unlock()
		return
	}
	d.visible = false
	fn := d.onClose
	d.mu.Unlock()

	log.Debug().Uint32("id", id).Uint32("reason", reason).Msg("notify: notification closed")
	if fn != nil {
		fn(CloseReason(reason))
	}
}
