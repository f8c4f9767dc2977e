// Command speakify records speech from the terminal, transcribes it and
// keeps a history of the transcripts.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jwulff/speakify/internal/app"
	"github.com/jwulff/speakify/internal/capture"
	"github.com/jwulff/speakify/internal/config"
	"github.com/jwulff/speakify/internal/daemon"
	"github.com/jwulff/speakify/internal/db"
	"github.com/jwulff/speakify/internal/history"
	"github.com/jwulff/speakify/internal/identity"
	"github.com/jwulff/speakify/internal/logging"
	"github.com/jwulff/speakify/internal/recorder"
	"github.com/jwulff/speakify/internal/transcribe"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "speakify:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath(), "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		return err
	}

	logPath := cfg.LogPath
	if logPath == "" {
		logPath = logging.DefaultPath()
	}
	logger, closer, err := logging.New(logPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	provider, err := newIdentity(cfg)
	if err != nil {
		return err
	}

	device, err := newDevice(cfg, logger)
	if err != nil {
		return err
	}

	client, err := transcribe.New(transcribe.Config{
		BaseURL: cfg.APIURL,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
		HTTP2:   cfg.HTTP2,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var store history.Store
	switch cfg.Store {
	case config.StoreSQLite:
		path := cfg.DBPath
		if path == "" {
			path = db.DefaultDBPath()
		}
		s, err := db.Open(path)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	default:
		store = history.NewRemoteStore(cfg.APIURL, cfg.Token, nil)
	}

	rec := recorder.New(capture.New(device), client, recorder.Config{Logger: logger})
	defer rec.Close()

	m := app.New(app.Deps{
		Recorder:  rec,
		History:   history.NewList(store, logger),
		Identity:  provider,
		Language:  cfg.Language,
		ExportDir: cfg.ExportDir,
		Notify:    cfg.Notify,
		Logger:    logger,
	})

	logger.Info("starting tui", "api_url", cfg.APIURL, "store", cfg.Store, "capture", cfg.Capture)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func newIdentity(cfg config.Config) (identity.Provider, error) {
	if cfg.Token != "" {
		p, err := identity.FromToken(cfg.Token)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	// a bare owner ID only works against a local store
	return identity.Static{OwnerID: cfg.OwnerID}, nil
}

func newDevice(cfg config.Config, logger *slog.Logger) (capture.Device, error) {
	if cfg.Capture == config.CapturePortAudio {
		return capture.NewPortAudioDevice(cfg.SampleRate)
	}
	socket := cfg.SocketPath
	if socket == "" {
		socket = daemon.SocketPath()
	}
	return &capture.DaemonDevice{
		SocketPath: socket,
		SampleRate: cfg.SampleRate,
		Logger:     logger,
	}, nil
}
