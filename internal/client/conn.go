package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stigoleg/session-guard/internal/wire"
)

const (
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

// ErrClosed is returned when writing to a closed Conn.
var ErrClosed = errors.New("client: connection closed")

// Conn is a websocket connection with an outbox. Invocations queue up until
// something flushes them; every flush is one batch frame.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex // serialises outbox access and all frame writes
	outbox  []wire.Invocation
	seq     uint64
	closed  bool
	onFlush func(carriedPing bool)
}

// Dial opens a websocket to url.
func Dial(ctx context.Context, dialer *websocket.Dialer, url string, header http.Header) (*Conn, error) {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(ws), nil
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// OnFlush registers fn to run after each batch was written. carriedPing tells
// whether the batch held a ping invocation.
func (c *Conn) OnFlush(fn func(carriedPing bool)) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.onFlush = fn
}

// Queue adds a ping to the outbox and writes it at once when immediate.
func (c *Conn) Queue(immediate bool) error {
	return c.enqueue(wire.Ping(), immediate)
}

// Send queues inv and flushes the outbox with it. This is the traffic that
// deferred pings ride along with.
func (c *Conn) Send(inv wire.Invocation) error {
	return c.enqueue(inv, true)
}

// Flush writes the outbox if it holds anything.
func (c *Conn) Flush() error {
	c.writeMu.Lock()
	hook, err := c.flushLocked()
	c.writeMu.Unlock()

	hook()
	return err
}

// Pending returns the number of queued invocations.
func (c *Conn) Pending() int {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return len(c.outbox)
}

func (c *Conn) enqueue(inv wire.Invocation, flush bool) error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return ErrClosed
	}
	c.outbox = append(c.outbox, inv)
	if !flush {
		c.writeMu.Unlock()
		return nil
	}
	hook, err := c.flushLocked()
	c.writeMu.Unlock()

	hook()
	return err
}

// flushLocked writes the outbox and returns the flush hook bound to the
// written batch. The hook must run after writeMu is released.
func (c *Conn) flushLocked() (func(), error) {
	nop := func() {}
	if c.closed {
		return nop, ErrClosed
	}
	if len(c.outbox) == 0 {
		return nop, nil
	}

	batch := wire.BatchPayload{Invocations: c.outbox}
	c.outbox = nil

	msg, err := wire.New(wire.MsgBatch, batch)
	if err != nil {
		return nop, err
	}
	c.seq++
	msg.Seq = c.seq

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		return nop, fmt.Errorf("write batch: %w", err)
	}
	if c.onFlush == nil {
		return nop, nil
	}
	hook, carried := c.onFlush, batch.HasPing()
	return func() { hook(carried) }, nil
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.closed
}

// Read blocks for the next server frame.
func (c *Conn) Read() (wire.Message, error) {
	var msg wire.Message
	if err := c.ws.ReadJSON(&msg); err != nil {
		return wire.Message{}, err
	}
	return msg, nil
}

// Close sends a close frame and closes the socket. Queued invocations are
// dropped.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.outbox = nil

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout))
	return c.ws.Close()
}
