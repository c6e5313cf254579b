package main

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stigoleg/session-guard/internal/client"
	"github.com/stigoleg/session-guard/internal/config"
	"github.com/stigoleg/session-guard/internal/guard"
	"github.com/stigoleg/session-guard/internal/notify"
	"github.com/stigoleg/session-guard/internal/ui"
)

const appVersion = "0.1.0"

func main() {
	cfg, err := config.ParseFlags(appVersion)
	if err != nil {
		fatal(err)
	}

	// The terminal belongs to the UI, so logs go to a file.
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		fatal(err)
	}
	defer f.Close()
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		presenter guard.Presenter
		toast     *ui.Toast
		desktop   *notify.Desktop
	)
	if cfg.Presenter == config.PresenterDesktop {
		desktop, err = notify.NewDesktop("session-guard", "Session timeout")
		if err != nil {
			log.Warn().Err(err).Msg("desktop notifications unavailable, showing warnings in the terminal")
		} else {
			desktop.OnClose(func(r notify.CloseReason) {
				log.Info().Stringer("reason", r).Msg("desktop warning closed")
			})
			presenter = desktop
		}
	}
	if presenter == nil {
		toast = ui.NewToast()
		presenter = toast
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		fatal(err)
	}

	c, err := client.Connect(ctx, client.Options{
		URL:              cfg.URL,
		Jar:              jar,
		Presenter:        presenter,
		Policy:           cfg.Policy,
		HandshakeTimeout: cfg.HandshakeTimeout,
	})
	if err != nil {
		if desktop != nil {
			desktop.Close()
		}
		fatal(err)
	}
	if desktop != nil {
		c.OnClose("desktop notifications", desktop.Close)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("cleanup finished with errors")
		}
	}()

	model := ui.InitialModel(c, c.Events(), toast)
	model.URL = cfg.URL
	model.SetVersion(appVersion)

	p := ui.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	go func() {
		if err := c.Run(ctx); err != nil {
			log.Error().Err(err).Msg("connection lost")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, getSignalsForPlatform()...)
	defer signal.Stop(sigChan)
	go func() {
		for sig := range sigChan {
			if isSIGTSTPForPlatform(sig) {
				// A stopped process cannot count down or answer the server.
				log.Info().Msg("ignoring suspend request")
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
			p.Quit()
			return
		}
	}()

	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("error running program")
		cancel()
		_ = c.Close()
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, ui.Current.Error.Render(err.Error()))
	os.Exit(1)
}
