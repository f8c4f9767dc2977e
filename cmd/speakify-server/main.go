// Command speakify-server serves POST /transcribe and the /transcripts API.
//
//	speakify-server            run the server
//	speakify-server token ID   print a bearer token for owner ID
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwulff/speakify/internal/config"
	"github.com/jwulff/speakify/internal/db"
	"github.com/jwulff/speakify/internal/identity"
	"github.com/jwulff/speakify/internal/logging"
	"github.com/jwulff/speakify/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "speakify-server:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", config.DefaultPath(), "path to config.yaml")
	tokenTTL := flag.Duration("ttl", 30*24*time.Hour, "lifetime of tokens printed by the token subcommand")
	flag.Parse()

	cfg, err := config.Load(*configPath, ".env")
	if err != nil {
		return err
	}

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

	verifier := identity.Verifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}

	if flag.Arg(0) == "token" {
		if flag.NArg() != 2 {
			return errors.New("usage: speakify-server token OWNER_ID")
		}
		tok, err := verifier.Issue(flag.Arg(1), *tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(tok)
		return nil
	}

	if len(verifier.Secret) < 32 {
		return fmt.Errorf("jwt secret: %w", identity.ErrSecretTooShort)
	}
	if cfg.OpenAIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = db.DefaultDBPath()
	}
	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := server.New(server.Config{
		Engine: server.NewOpenAIEngine(cfg.OpenAIKey, cfg.OpenAIURL, cfg.OpenAIModel, cfg.Language),
		Store:  store,
		Cache:  store,
		Auth:   verifier,
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return pruneCache(ctx, store, cfg.CacheMaxAge, logger)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// pruneCache drops stale transcription cache entries every hour.
func pruneCache(ctx context.Context, store *db.Store, maxAge time.Duration, logger *slog.Logger) error {
	if maxAge <= 0 {
		return nil
	}
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := store.PruneCache(ctx, maxAge)
		if err != nil && ctx.Err() == nil {
			logger.Warn("prune cache failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned cache", "entries", n)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
