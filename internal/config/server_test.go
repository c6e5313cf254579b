package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stigoleg/session-guard/internal/server"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdir runs the test in an empty directory so no stray .env is loaded.
func chdir(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestLoadServerDefaults(t *testing.T) {
	chdir(t)

	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerConfig(), cfg)
}

func TestLoadServerFile(t *testing.T) {
	chdir(t)
	path := writeConfig(t, `
addr: "127.0.0.1:9090"
session_timeout: "15"
sweep_interval: 30s
allowed_origins:
  - https://app.example.com
log_level: debug
guard:
  warning_period_minutes: 3
  warning_template: "Only _ minutes left"
  keep_alive: true
`)

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, 15*time.Minute, time.Duration(cfg.SessionTimeout))
	assert.Equal(t, 30*time.Second, time.Duration(cfg.SweepInterval))
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, server.Defaults{
		WarningPeriodMinutes: 3,
		WarningTemplate:      "Only _ minutes left",
		KeepAlive:            true,
	}, cfg.Guard)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestLoadServerEnvOverrides(t *testing.T) {
	chdir(t)
	path := writeConfig(t, "addr: \":7000\"\n")

	t.Setenv(EnvAddr, ":7001")
	t.Setenv(EnvSessionTimeout, "2h")
	t.Setenv(EnvWarningPeriod, "5")
	t.Setenv(EnvKeepAlive, "true")
	t.Setenv(EnvAllowedOrigins, "https://a.example, https://b.example ,")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.Addr)
	assert.Equal(t, 2*time.Hour, time.Duration(cfg.SessionTimeout))
	assert.Equal(t, 5, cfg.Guard.WarningPeriodMinutes)
	assert.True(t, cfg.Guard.KeepAlive)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadServerDotEnv(t *testing.T) {
	chdir(t)
	require.NoError(t, os.WriteFile(".env", []byte(EnvSessionTimeout+"=45\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv(EnvSessionTimeout) })

	cfg, err := LoadServer("")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, time.Duration(cfg.SessionTimeout))
}

func TestLoadServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{"bad duration", "session_timeout: soon\n", nil, "Invalid duration format"},
		{"short session", "session_timeout: 30s\n", nil, "at least one minute"},
		{"zero sweep", "sweep_interval: \"0\"\n", nil, "sweep_interval"},
		{"bad template", "guard:\n  warning_template: no placeholder\n", nil, "placeholder"},
		{"bad level", "log_level: loud\n", nil, "log_level"},
		{"bad env bool", "", map[string]string{EnvKeepAlive: "maybe"}, EnvKeepAlive},
		{"bad env period", "", map[string]string{EnvWarningPeriod: "two"}, EnvWarningPeriod},
		{"negative env period", "", map[string]string{EnvWarningPeriod: "-1"}, "greater than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadServer(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadServerMissingFile(t *testing.T) {
	chdir(t)
	_, err := LoadServer(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
