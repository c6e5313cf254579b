// Package client connects a countdown engine to a guarded server: it applies
// config pushes, resets the countdown on acknowledgements and carries pings.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stigoleg/session-guard/internal/activity"
	"github.com/stigoleg/session-guard/internal/guard"
	"github.com/stigoleg/session-guard/internal/wire"
)

const eventBuffer = 64

// EventKind tells the UI what happened on the connection.
type EventKind int

const (
	EventState EventKind = iota
	EventPong
	EventAck
	EventExpired
	EventServerError
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventPong:
		return "pong"
	case EventAck:
		return "ack"
	case EventExpired:
		return "expired"
	case EventServerError:
		return "server-error"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is published for every frame the UI may care about.
type Event struct {
	Kind EventKind
	// Name is the acknowledged action for EventAck, the message for
	// EventServerError.
	Name string
	Err  error
}

// Options configure Connect.
type Options struct {
	URL       string
	Header    http.Header
	Jar       http.CookieJar
	Presenter guard.Presenter
	Policy    guard.ExpiryPolicy
	Clock     clockwork.Clock
	Logger    *zerolog.Logger

	HandshakeTimeout time.Duration
	CloseTimeout     time.Duration
}

// Client owns the connection, the activity reporter and the engine.
type Client struct {
	conn     *Conn
	reporter *activity.Reporter
	engine   *guard.Engine
	events   chan Event
	cleanup  *CleanupManager
	logger   zerolog.Logger

	// read loop only
	started bool
}

// Connect dials the server and wires the guard. Call Run to start reading.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	logger := log.Logger.With().Str("component", "client").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		Jar:              opts.Jar,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, err := Dial(ctx, dialer, opts.URL, opts.Header)
	if err != nil {
		return nil, err
	}

	reporter := activity.NewReporter(conn)
	reporter.SetLogger(logger)
	conn.OnFlush(reporter.Flushed)

	engineOpts := []guard.Option{
		guard.WithExpiryPolicy(opts.Policy),
		guard.WithLogger(logger),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, guard.WithClock(opts.Clock))
	}

	c := &Client{
		conn:     conn,
		reporter: reporter,
		engine:   guard.New(reporter, opts.Presenter, engineOpts...),
		events:   make(chan Event, eventBuffer),
		cleanup:  NewCleanupManager(opts.CloseTimeout),
		logger:   logger,
	}
	c.cleanup.Register("websocket", conn.Close)
	c.cleanup.Register("engine", func() error {
		c.engine.Stop()
		return nil
	})

	logger.Info().Str("url", opts.URL).Msg("connected")
	return c, nil
}

// Engine exposes the countdown engine, mainly for status display.
func (c *Client) Engine() *guard.Engine { return c.engine }

// Snapshot returns the engine state.
func (c *Client) Snapshot() guard.Snapshot { return c.engine.Snapshot() }

// Reporter exposes the activity reporter.
func (c *Client) Reporter() *activity.Reporter { return c.reporter }

// Events delivers connection events. The channel is closed when Run returns.
func (c *Client) Events() <-chan Event { return c.events }

// Action sends an application action. Any deferred ping goes out with it.
func (c *Client) Action(name string) error {
	return c.conn.Send(wire.Action(name))
}

// OnClose registers an extra teardown step run by Close before the engine and
// connection are shut down.
func (c *Client) OnClose(name string, fn func() error) {
	c.cleanup.Register(name, fn)
}

// Close tears the client down. It is safe to call more than once.
func (c *Client) Close() error {
	return c.cleanup.Execute()
}

// Run reads server frames until the connection fails or ctx is done. The
// engine is stopped when Run returns.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	defer c.engine.Stop()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := c.conn.Read()
		if err != nil {
			if ctx.Err() != nil || c.conn.Closed() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.publish(Event{Kind: EventDisconnected})
				return nil
			}
			c.publish(Event{Kind: EventDisconnected, Err: err})
			return err
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg wire.Message) {
	switch msg.Type {
	case wire.MsgState:
		var u wire.StatePayload
		if err := msg.Decode(&u); err != nil {
			c.logger.Warn().Err(err).Msg("ignoring malformed state")
			return
		}
		c.applyState(ctx, u)
		c.publish(Event{Kind: EventState})

	case wire.MsgPong:
		c.reporter.Acknowledged()
		c.engine.Reset()
		c.publish(Event{Kind: EventPong})

	case wire.MsgAck:
		var a wire.AckPayload
		if err := msg.Decode(&a); err != nil {
			c.logger.Warn().Err(err).Msg("ignoring malformed ack")
			return
		}
		c.publish(Event{Kind: EventAck, Name: a.Name})

	case wire.MsgExpired:
		c.logger.Info().Msg("server reports session expired")
		c.engine.Stop()
		c.publish(Event{Kind: EventExpired})

	case wire.MsgError:
		var e wire.ErrorPayload
		if err := msg.Decode(&e); err != nil {
			c.logger.Warn().Err(err).Msg("ignoring malformed error")
			return
		}
		c.publish(Event{Kind: EventServerError, Name: e.Message})

	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("ignoring unknown message")
	}
}

// applyState starts the engine on the first push and reconfigures it after.
func (c *Client) applyState(ctx context.Context, u guard.ConfigUpdate) {
	if c.started {
		c.engine.Apply(u)
		return
	}

	cfg := guard.DefaultConfig()
	cfg.Merge(u)
	if err := c.engine.Start(ctx, cfg); err != nil {
		c.logger.Error().Err(err).Msg("failed to start countdown")
		return
	}
	c.started = true

	// Ride along with the next exchange; the server's pong then resets the
	// countdown whenever the user does anything.
	c.reporter.Ping(false)
}

func (c *Client) publish(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn().Str("event", ev.Kind.String()).Msg("event buffer full, dropping event")
	}
}
