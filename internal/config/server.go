package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/stigoleg/session-guard/internal/server"
	"github.com/stigoleg/session-guard/internal/util"
)

// Environment variables that override the server config file.
const (
	EnvAddr           = "SESSIONGUARD_ADDR"
	EnvSessionTimeout = "SESSIONGUARD_SESSION_TIMEOUT"
	EnvSweepInterval  = "SESSIONGUARD_SWEEP_INTERVAL"
	EnvWarningPeriod  = "SESSIONGUARD_WARNING_PERIOD"
	EnvWarningText    = "SESSIONGUARD_WARNING_TEMPLATE"
	EnvKeepAlive      = "SESSIONGUARD_KEEP_ALIVE"
	EnvAllowedOrigins = "SESSIONGUARD_ALLOWED_ORIGINS"
	EnvLogLevel       = "SESSIONGUARD_LOG_LEVEL"
)

// Duration reads a plain number of minutes or a Go duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := util.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// ServerConfig is the server configuration.
type ServerConfig struct {
	Addr           string          `yaml:"addr"`
	SessionTimeout Duration        `yaml:"session_timeout"`
	SweepInterval  Duration        `yaml:"sweep_interval"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	LogLevel       string          `yaml:"log_level"`
	Guard          server.Defaults `yaml:"guard"`
}

// DefaultServerConfig returns the configuration used when no file is given.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:           ":8080",
		SessionTimeout: Duration(30 * time.Minute),
		SweepInterval:  Duration(time.Minute),
		LogLevel:       "info",
		Guard: server.Defaults{
			WarningPeriodMinutes: server.DefaultWarningPeriod,
		},
	}
}

// LoadServer loads .env if present, then the YAML file at path (optional),
// then environment overrides.
func LoadServer(path string) (*ServerConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Addr = v
	}
	if v := os.Getenv(EnvSessionTimeout); v != "" {
		d, err := util.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSessionTimeout, err)
		}
		c.SessionTimeout = Duration(d)
	}
	if v := os.Getenv(EnvSweepInterval); v != "" {
		d, err := util.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSweepInterval, err)
		}
		c.SweepInterval = Duration(d)
	}
	if v := os.Getenv(EnvWarningPeriod); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWarningPeriod, err)
		}
		c.Guard.WarningPeriodMinutes = n
	}
	if v := os.Getenv(EnvWarningText); v != "" {
		c.Guard.WarningTemplate = v
	}
	if v := os.Getenv(EnvKeepAlive); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKeepAlive, err)
		}
		c.Guard.KeepAlive = b
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.SessionTimeout < Duration(time.Minute) {
		return fmt.Errorf("session_timeout %s: must be at least one minute", time.Duration(c.SessionTimeout))
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval %s: %w", time.Duration(c.SweepInterval), server.ErrNonPositiveTimeSpan)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if err := c.Guard.Validate(); err != nil {
		return fmt.Errorf("guard: %w", err)
	}
	return nil
}

// Level returns the parsed log level.
func (c *ServerConfig) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}
