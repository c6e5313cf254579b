package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stigoleg/session-guard/internal/guard"
	"github.com/stigoleg/session-guard/internal/ui"
	"github.com/stigoleg/session-guard/internal/util"
)

// Presenters the client can show warnings with.
const (
	PresenterTUI     = "tui"
	PresenterDesktop = "desktop"
)

const (
	defaultURL     = "ws://localhost:8080/ws"
	defaultLogFile = "debug.log"

	envURL = "SESSIONGUARD_URL"
)

// Config is the client configuration.
type Config struct {
	URL              string
	LogFile          string
	Presenter        string
	Policy           guard.ExpiryPolicy
	HandshakeTimeout time.Duration
	Debug            bool
	ShowVersion      bool
}

func formatError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, "Invalid duration format:") {
		parts := strings.SplitN(msg, "\n\n", 2)
		if len(parts) == 2 {
			errorBox := ui.Current.Help.
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#FF4040"))

			header := lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FF4040")).
				Render(parts[0])

			details := lipgloss.NewStyle().
				Foreground(lipgloss.Color("#999999")).
				Render(parts[1])

			return errorBox.Render(fmt.Sprintf("%s\n\n%s", header, details))
		}
	}
	return ui.Current.Error.Render(msg)
}

// ParseFlags parses the command line. It exits for -help, -version and
// invalid input.
func ParseFlags(version string) (*Config, error) {
	cfg, err := Parse(os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Println(formatError(err))
		os.Exit(1)
	}

	if cfg.ShowVersion {
		fmt.Printf("Session-Guard Version: %s\n", version)
		os.Exit(0)
	}
	return cfg, nil
}

// Parse parses args without exiting. Usage goes to out.
func Parse(args []string, out io.Writer) (*Config, error) {
	flags := flag.NewFlagSet("sessionguard", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.Usage = func() {
		model := ui.InitialModel(nil, nil, nil)
		model.ShowHelp = true
		fmt.Fprint(out, model.View())
	}

	defURL := defaultURL
	if v := os.Getenv(envURL); v != "" {
		defURL = v
	}

	serverURL := flags.String("url", defURL, "Websocket URL of the server")
	logFile := flags.String("log", defaultLogFile, "Log file")
	presenter := flags.String("presenter", PresenterTUI, "Where warnings appear: tui or desktop")
	policy := flags.String("policy", guard.PolicyOnTime.String(), "When the final ping fires: on-time or grace")
	handshake := flags.String("handshake-timeout", "10s", "Websocket handshake timeout")
	debug := flags.Bool("debug", false, "Log at debug level")
	showVersion := flags.Bool("version", false, "Show version information")
	flags.BoolVar(showVersion, "v", false, "Show version information")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		URL:         *serverURL,
		LogFile:     *logFile,
		Presenter:   *presenter,
		Debug:       *debug,
		ShowVersion: *showVersion,
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: want ws:// or wss://", cfg.URL)
	}

	switch cfg.Presenter {
	case PresenterTUI, PresenterDesktop:
	default:
		return nil, fmt.Errorf("unknown presenter %q: want %s or %s", cfg.Presenter, PresenterTUI, PresenterDesktop)
	}

	if cfg.Policy, err = guard.ParseExpiryPolicy(*policy); err != nil {
		return nil, err
	}

	if cfg.HandshakeTimeout, err = util.ParseDuration(*handshake); err != nil {
		return nil, err
	}
	return cfg, nil
}
