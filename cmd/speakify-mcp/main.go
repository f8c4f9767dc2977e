// Command speakify-mcp exposes the transcript history over MCP on stdio.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jwulff/speakify/internal/config"
	"github.com/jwulff/speakify/internal/db"
	"github.com/jwulff/speakify/internal/history"
	"github.com/jwulff/speakify/internal/identity"
	"github.com/jwulff/speakify/internal/logging"
	"github.com/jwulff/speakify/internal/mcptools"
	"github.com/mark3labs/mcp-go/server"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "speakify-mcp:", err)
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

	// stdout carries the protocol
	logPath := cfg.LogPath
	if logPath == "" {
		logPath = "-"
	}
	logger, closer, err := logging.New(logPath, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	owner := cfg.OwnerID
	if cfg.Token != "" {
		p, err := identity.FromToken(cfg.Token)
		if err != nil {
			return err
		}
		sess, err := identity.Require(p)
		if err != nil {
			return err
		}
		owner = sess.OwnerID
	}
	if owner == "" {
		return identity.ErrNoSession
	}

	var store history.Store
	if cfg.Store == config.StoreSQLite {
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
	} else {
		store = history.NewRemoteStore(cfg.APIURL, cfg.Token, nil)
	}

	s := mcptools.NewServer(mcptools.New(store, owner, logger), version)
	logger.Info("serving mcp on stdio", "owner_id", owner, "store", cfg.Store)
	if err := server.ServeStdio(s); err != nil {
		return fmt.Errorf("serve stdio: %w", err)
	}
	return nil
}
