package integration

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stigoleg/session-guard/internal/client"
	"github.com/stigoleg/session-guard/internal/guard"
	"github.com/stigoleg/session-guard/internal/server"
	"github.com/stigoleg/session-guard/internal/ui"
)

const waitTimeout = 3 * time.Second

// env is a guarded server and one connected client sharing a fake clock.
type env struct {
	clock  *clockwork.FakeClock
	start  time.Time
	store  *server.Store
	server *server.Server
	http   *httptest.Server
	jar    http.CookieJar
	policy guard.ExpiryPolicy
	logger zerolog.Logger

	client *client.Client
	toast  *ui.Toast
	cancel context.CancelFunc
	runErr chan error
	id     string
}

func newEnv(t *testing.T, timeout time.Duration, defaults server.Defaults, policy guard.ExpiryPolicy) *env {
	t.Helper()

	e := &env{
		clock:  clockwork.NewFakeClock(),
		policy: policy,
		logger: zerolog.Nop(),
	}
	e.start = e.clock.Now()
	e.store = server.NewStore(timeout, e.clock)

	var err error
	e.server, err = server.New(e.store, server.Options{Defaults: defaults, Logger: &e.logger})
	require.NoError(t, err)
	e.http = httptest.NewServer(e.server.Handler())
	t.Cleanup(func() {
		e.server.Close()
		e.http.Close()
	})

	e.jar, err = cookiejar.New(nil)
	require.NoError(t, err)

	e.connect(t)
	return e
}

// reconnect opens a second client with the same cookie jar.
func (e *env) reconnect(t *testing.T) *env {
	t.Helper()
	again := *e
	again.connect(t)
	return &again
}

func (e *env) connect(t *testing.T) {
	t.Helper()

	e.toast = ui.NewToast()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := client.Connect(ctx, client.Options{
		URL:       "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws",
		Jar:       e.jar,
		Presenter: e.toast,
		Policy:    e.policy,
		Clock:     e.clock,
		Logger:    &e.logger,
	})
	if err != nil {
		cancel()
		t.Fatalf("connect: %v", err)
	}
	e.client = c
	e.cancel = cancel
	e.runErr = make(chan error, 1)
	go func() { e.runErr <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})

	e.waitFor(t, client.EventState)
	// the engine has armed its first timer once it answers
	c.Snapshot()

	u, err := url.Parse(e.http.URL)
	require.NoError(t, err)
	e.id = ""
	for _, ck := range e.jar.Cookies(u) {
		if ck.Name == server.SessionCookie {
			e.id = ck.Value
		}
	}
	require.NotEmpty(t, e.id, "server did not set the session cookie")
}

// waitFor consumes client events until one of kind arrives.
func (e *env) waitFor(t *testing.T, kind client.EventKind) client.Event {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-e.client.Events():
			require.True(t, ok, "client stopped while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
			return client.Event{}
		}
	}
}

// advance moves the clock and returns the engine state once everything that
// fired has been handled.
func (e *env) advance(d time.Duration) guard.Snapshot {
	e.clock.Advance(d)
	return e.client.Snapshot()
}

// at returns the instant d after the environment started.
func (e *env) at(d time.Duration) time.Time { return e.start.Add(d) }

func (e *env) session(t *testing.T) server.Session {
	t.Helper()
	sess, err := e.store.Get(e.id)
	require.NoError(t, err)
	return sess
}
