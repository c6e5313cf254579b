// Package guard implements the session expiry countdown: it decides from the
// server supplied SessionConfig when to warn the user, how to count the warning
// down, and when to force a keep-alive ping.
package guard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning is returned by Start on an engine that was not stopped.
var ErrAlreadyRunning = errors.New("guard: engine already running")

const (
	tickInterval = time.Minute

	// keepAliveLead is how long before expiry the heartbeat fires. One minute
	// is the shortest session, so half of it never yields a zero delay.
	keepAliveLead = 30 * time.Second
)

// countdown is rebuilt from scratch on every reconfiguration.
type countdown struct {
	phase       Phase
	minutesLeft int
	scheduled   clockwork.Timer
	tick        clockwork.Ticker
	next        time.Time
}

// Engine owns at most one scheduled timer and one minute ticker. All state is
// mutated on a single run loop goroutine; exported methods post events to it.
type Engine struct {
	clock     clockwork.Clock
	pinger    Pinger
	presenter Presenter
	policy    ExpiryPolicy
	logger    zerolog.Logger

	events chan func()

	mu   sync.Mutex
	quit chan struct{}
	done chan struct{}

	// owned by the run loop
	cfg SessionConfig
	cd  countdown
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithExpiryPolicy selects the minute-zero policy. The default is PolicyOnTime.
func WithExpiryPolicy(p ExpiryPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger used for state transitions.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates a stopped engine. A nil presenter is replaced by NopPresenter.
func New(pinger Pinger, presenter Presenter, opts ...Option) *Engine {
	if presenter == nil {
		presenter = NopPresenter{}
	}
	e := &Engine{
		clock:     clockwork.NewRealClock(),
		pinger:    pinger,
		presenter: presenter,
		policy:    PolicyOnTime,
		logger:    log.Logger.With().Str("component", "guard").Logger(),
		events:    make(chan func()),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start configures the engine from cfg and starts its run loop. The loop ends
// when ctx is done or Stop is called.
func (e *Engine) Start(ctx context.Context, cfg SessionConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done != nil {
		select {
		case <-e.done:
		default:
			return ErrAlreadyRunning
		}
	}

	e.cfg = cfg
	e.reconfigure("start")

	e.quit = make(chan struct{})
	e.done = make(chan struct{})
	go e.run(ctx, e.quit, e.done)
	return nil
}

// Stop cancels every pending timer, hides a warning that is still up and
// waits for the run loop to exit. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	quit, done := e.quit, e.done
	e.quit = nil
	e.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	<-done
}

// Apply merges a config push and restarts the countdown from scratch. Empty
// updates are ignored.
func (e *Engine) Apply(u ConfigUpdate) {
	if u.Empty() {
		return
	}
	e.post(func() {
		e.cfg.Merge(u)
		e.reconfigure("config")
	})
}

// Reset restarts the countdown from the current config. It is called when the
// server acknowledged activity.
func (e *Engine) Reset() {
	e.post(func() {
		e.reconfigure("reset")
	})
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	var s Snapshot
	ok := e.call(func() {
		s = Snapshot{
			Running:     true,
			Phase:       e.cd.phase,
			MinutesLeft: e.cd.minutesLeft,
			Config:      e.cfg,
			Next:        e.cd.next,
		}
	})
	if !ok {
		e.mu.Lock()
		s = Snapshot{Config: e.cfg}
		e.mu.Unlock()
	}
	return s
}

func (e *Engine) post(ev func()) bool {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case e.events <- ev:
		return true
	case <-done:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(fn func()) bool {
	finished := make(chan struct{})
	if !e.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

func (e *Engine) run(ctx context.Context, quit, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			e.teardown()
			return
		case <-quit:
			e.teardown()
			return
		case <-e.scheduledC():
			e.fire()
		case <-e.tickC():
			e.tick()
		case ev := <-e.events:
			// timers that fired before the event was delivered go first
			e.drainFired()
			ev()
		}
	}
}

func (e *Engine) drainFired() {
	for {
		select {
		case <-e.scheduledC():
			e.fire()
		case <-e.tickC():
			e.tick()
		default:
			return
		}
	}
}

func (e *Engine) scheduledC() <-chan time.Time {
	if e.cd.scheduled == nil {
		return nil
	}
	return e.cd.scheduled.Chan()
}

func (e *Engine) tickC() <-chan time.Time {
	if e.cd.tick == nil {
		return nil
	}
	return e.cd.tick.Chan()
}

// reconfigure cancels everything and schedules the single timer the config
// asks for, if any.
func (e *Engine) reconfigure(reason string) {
	warning := e.cd.phase == PhaseWarning
	e.cancel()
	e.cd = countdown{phase: PhaseIdle}

	// keep-alive never warns, so a warning still up is stale
	if warning && e.cfg.KeepAlive {
		e.presenter.Hide()
	}

	t := e.cfg.TimeoutMinutes()
	w := e.cfg.WarningPeriodMinutes

	switch {
	case e.cfg.KeepAlive && t > 0:
		e.schedule(time.Duration(t)*time.Minute - keepAliveLead)
	case !e.cfg.KeepAlive && w > 0 && t > w:
		e.schedule(time.Duration(t-w) * time.Minute)
	default:
		e.logger.Debug().
			Str("reason", reason).
			Int("timeout_min", t).
			Int("warning_min", w).
			Bool("keep_alive", e.cfg.KeepAlive).
			Msg("countdown disabled")
		return
	}

	e.logger.Debug().
		Str("reason", reason).
		Bool("keep_alive", e.cfg.KeepAlive).
		Time("next", e.cd.next).
		Msg("countdown scheduled")
}

func (e *Engine) schedule(d time.Duration) {
	e.cd.scheduled = e.clock.NewTimer(d)
	e.cd.next = e.clock.Now().Add(d)
	e.cd.phase = PhaseWaiting
}

func (e *Engine) fire() {
	e.cd.scheduled = nil
	e.cd.next = time.Time{}

	if e.cfg.KeepAlive {
		e.logger.Debug().Msg("keep-alive heartbeat")
		e.pinger.Ping(true)
		e.reconfigure("heartbeat")
		return
	}

	w := e.cfg.WarningPeriodMinutes
	e.cd.phase = PhaseWarning
	e.cd.minutesLeft = w
	e.presenter.Show(Render(e.cfg.WarningTemplate, w))
	e.cd.tick = e.clock.NewTicker(tickInterval)
	e.cd.next = e.clock.Now().Add(tickInterval)

	e.logger.Info().Int("minutes_left", w).Msg("session timeout warning shown")
}

func (e *Engine) tick() {
	if e.cd.phase != PhaseWarning {
		e.stopTick()
		return
	}

	if !e.presenter.Visible() {
		e.stopTick()
		e.cd.phase = PhaseIdle
		e.logger.Info().Msg("warning dismissed, reporting activity")
		e.pinger.Ping(true)
		return
	}

	if e.cd.minutesLeft > e.policy.floor() {
		e.cd.minutesLeft--
		e.presenter.Update(Render(e.cfg.WarningTemplate, e.cd.minutesLeft))
		e.cd.next = e.clock.Now().Add(tickInterval)
		return
	}

	// The server should have expired the session by now; the ping lets it
	// report that.
	e.logger.Info().Str("policy", e.policy.String()).Msg("warning period over, forcing ping")
	e.pinger.Ping(true)
	e.stopTick()
	e.presenter.Hide()
	e.cd.phase = PhaseIdle
}

func (e *Engine) cancel() {
	if e.cd.scheduled != nil {
		stopAndDrainTimer(e.cd.scheduled)
		e.cd.scheduled = nil
	}
	e.stopTick()
}

func (e *Engine) stopTick() {
	if e.cd.tick == nil {
		return
	}
	e.cd.tick.Stop()
	select {
	case <-e.cd.tick.Chan():
	default:
	}
	e.cd.tick = nil
	e.cd.next = time.Time{}
}

func (e *Engine) teardown() {
	warning := e.cd.phase == PhaseWarning
	e.cancel()
	e.cd = countdown{phase: PhaseIdle}
	if warning {
		e.presenter.Hide()
	}
	e.logger.Debug().Msg("engine stopped")
}

// stopAndDrainTimer stops t and empties its channel if it already fired.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
