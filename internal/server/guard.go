package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stigoleg/session-guard/internal/guard"
)

type field uint8

const (
	fieldTimeout field = 1 << iota
	fieldWarning
	fieldTemplate
	fieldKeepAlive

	fieldAll = fieldTimeout | fieldWarning | fieldTemplate | fieldKeepAlive
)

// Guard is the server side of a guarded connection. It holds the session
// config and tracks which fields still have to be pushed to the client.
type Guard struct {
	mu    sync.Mutex
	cfg   guard.SessionConfig
	dirty field
}

// Defaults are the values a new Guard starts with. The zero value gives a
// two minute warning with the default template.
type Defaults struct {
	WarningPeriodMinutes int    `json:"warningPeriodMinutes" yaml:"warning_period_minutes"`
	WarningTemplate      string `json:"timeoutWarningTemplate" yaml:"warning_template"`
	KeepAlive            bool   `json:"keepAlive" yaml:"keep_alive"`
}

// DefaultWarningPeriod is used when Defaults leave the period unset.
const DefaultWarningPeriod = 2

// Validate checks d the way the setters would.
func (d Defaults) Validate() error {
	if d.WarningPeriodMinutes < 0 {
		return fmt.Errorf("warning period %d: %w", d.WarningPeriodMinutes, ErrNonPositiveTimeSpan)
	}
	if d.WarningTemplate != "" && !strings.Contains(d.WarningTemplate, guard.Placeholder) {
		return ErrInvalidTemplate
	}
	return nil
}

// NewGuard creates an unattached guard. Its timeout is guard.UnknownTimeout
// until Attach.
func NewGuard(d Defaults) *Guard {
	cfg := guard.DefaultConfig()
	cfg.WarningPeriodMinutes = d.WarningPeriodMinutes
	if cfg.WarningPeriodMinutes <= 0 {
		cfg.WarningPeriodMinutes = DefaultWarningPeriod
	}
	cfg.WarningTemplate = d.WarningTemplate
	if !validTemplate(cfg.WarningTemplate) {
		cfg.WarningTemplate = guard.DefaultWarningTemplate
	}
	cfg.KeepAlive = d.KeepAlive
	return &Guard{cfg: cfg, dirty: fieldAll}
}

// Attach reads the session timeout from sc. A nil context means the guard is
// hosted somewhere without sessions, which is an integration error.
func (g *Guard) Attach(sc SessionContext) error {
	if sc == nil {
		return ErrNoSessionContext
	}
	secs := int(sc.MaxInactiveInterval().Seconds())

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.TimeoutSeconds != secs {
		g.cfg.TimeoutSeconds = secs
		g.dirty |= fieldTimeout
	}
	return nil
}

// SetTimeoutWarningPeriod sets how many minutes before expiry the warning
// appears.
func (g *Guard) SetTimeoutWarningPeriod(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("warning period %d: %w", minutes, ErrNonPositiveTimeSpan)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.WarningPeriodMinutes = minutes
	g.dirty |= fieldWarning
	return nil
}

// SetTimeoutWarningTemplate sets the warning text. Every '_' is replaced by
// the remaining minutes. A template without one is rejected and the
// previous template stays.
func (g *Guard) SetTimeoutWarningTemplate(template string) error {
	if !validTemplate(template) {
		return ErrInvalidTemplate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.WarningTemplate = template
	g.dirty |= fieldTemplate
	return nil
}

// SetKeepAlive makes the client ping before expiry instead of warning.
func (g *Guard) SetKeepAlive(keepAlive bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.KeepAlive = keepAlive
	g.dirty |= fieldKeepAlive
}

// ToggleKeepAlive flips keep-alive and returns the new value.
func (g *Guard) ToggleKeepAlive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.KeepAlive = !g.cfg.KeepAlive
	g.dirty |= fieldKeepAlive
	return g.cfg.KeepAlive
}

// Config returns the current config.
func (g *Guard) Config() guard.SessionConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Drain returns the fields changed since the last Drain and marks them
// clean. A new guard reports every field.
func (g *Guard) Drain() guard.ConfigUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()

	full := g.cfg.Update()
	var u guard.ConfigUpdate
	if g.dirty&fieldTimeout != 0 {
		u.SessionTimeoutSeconds = full.SessionTimeoutSeconds
	}
	if g.dirty&fieldWarning != 0 {
		u.WarningPeriodMinutes = full.WarningPeriodMinutes
	}
	if g.dirty&fieldTemplate != 0 {
		u.TimeoutWarningTemplate = full.TimeoutWarningTemplate
	}
	if g.dirty&fieldKeepAlive != 0 {
		u.KeepAlive = full.KeepAlive
	}
	g.dirty = 0
	return u
}

func validTemplate(t string) bool {
	return strings.Contains(t, guard.Placeholder)
}
