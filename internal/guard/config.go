package guard

// UnknownTimeout is the session timeout reported before the guard is attached
// to a session whose real timeout is known.
const UnknownTimeout = -2

// SessionConfig holds the four values pushed from the server whenever they change.
type SessionConfig struct {
	TimeoutSeconds       int
	WarningPeriodMinutes int
	WarningTemplate      string
	KeepAlive            bool
}

// DefaultConfig returns the configuration of a guard that is not attached yet.
func DefaultConfig() SessionConfig {
	return SessionConfig{TimeoutSeconds: UnknownTimeout}
}

// TimeoutMinutes returns the session timeout in whole minutes. The unknown
// sentinel and any negative value truncate to zero.
func (c SessionConfig) TimeoutMinutes() int {
	return c.TimeoutSeconds / 60
}

// Update returns an update carrying every field of c.
func (c SessionConfig) Update() ConfigUpdate {
	timeout := c.TimeoutSeconds
	warning := c.WarningPeriodMinutes
	template := c.WarningTemplate
	keepAlive := c.KeepAlive
	return ConfigUpdate{
		SessionTimeoutSeconds:  &timeout,
		WarningPeriodMinutes:   &warning,
		TimeoutWarningTemplate: &template,
		KeepAlive:              &keepAlive,
	}
}

// Merge applies the fields present in u. An empty template is ignored and the
// previous one stays in effect.
func (c *SessionConfig) Merge(u ConfigUpdate) {
	if u.SessionTimeoutSeconds != nil {
		c.TimeoutSeconds = *u.SessionTimeoutSeconds
	}
	if u.WarningPeriodMinutes != nil {
		c.WarningPeriodMinutes = *u.WarningPeriodMinutes
	}
	if u.TimeoutWarningTemplate != nil && *u.TimeoutWarningTemplate != "" {
		c.WarningTemplate = *u.TimeoutWarningTemplate
	}
	if u.KeepAlive != nil {
		c.KeepAlive = *u.KeepAlive
	}
}

// ConfigUpdate is a partial SessionConfig as it arrives from the server. Nil
// fields were not part of the push.
type ConfigUpdate struct {
	SessionTimeoutSeconds  *int    `json:"sessionTimeoutSeconds,omitempty"`
	WarningPeriodMinutes   *int    `json:"warningPeriodMinutes,omitempty"`
	TimeoutWarningTemplate *string `json:"timeoutWarningTemplate,omitempty"`
	KeepAlive              *bool   `json:"keepAlive,omitempty"`
}

// Empty reports whether the update carries no field at all.
func (u ConfigUpdate) Empty() bool {
	return u.SessionTimeoutSeconds == nil &&
		u.WarningPeriodMinutes == nil &&
		u.TimeoutWarningTemplate == nil &&
		u.KeepAlive == nil
}
