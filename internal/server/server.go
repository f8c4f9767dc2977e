// Package server is the speakify backend: it transcribes uploads and
// persists transcripts per owner.
package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jwulff/speakify/internal/capture"
	"github.com/jwulff/speakify/internal/history"
	"github.com/jwulff/speakify/internal/identity"
)

const localsOwner = "owner"

// DefaultBodyLimit bounds uploads.
const DefaultBodyLimit = 25 << 20

// Cache stores transcripts by audio digest.
type Cache interface {
	CachedTranscript(ctx context.Context, digest string) (string, bool, error)
	CacheTranscript(ctx context.Context, digest, text string) error
}

// Authenticator resolves a bearer token to a session. identity.Verifier
// satisfies it.
type Authenticator interface {
	Verify(token string) (identity.Session, error)
}

// Config wires a Server.
type Config struct {
	Engine    Engine
	Store     history.Store
	Cache     Cache
	Auth      Authenticator
	BodyLimit int
	Logger    *slog.Logger
}

// Server is the HTTP backend.
type Server struct {
	app    *fiber.App
	engine Engine
	store  history.Store
	cache  Cache
	auth   Authenticator
	logger *slog.Logger
}

// New builds the fiber app and registers the routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.BodyLimit
	if limit <= 0 {
		limit = DefaultBodyLimit
	}

	s := &Server{
		engine: cfg.Engine,
		store:  cfg.Store,
		cache:  cfg.Cache,
		auth:   cfg.Auth,
		logger: logger,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "speakify",
		BodyLimit:             limit,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	s.app.Post("/transcribe", s.requireOwner, s.transcribe)
	s.app.Get("/transcripts", s.requireOwner, s.listTranscripts)
	s.app.Post("/transcripts", s.requireOwner, s.createTranscript)
	s.app.Delete("/transcripts/:id", s.requireOwner, s.deleteTranscript)

	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) requireOwner(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
	}
	sess, err := s.auth.Verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}
	c.Locals(localsOwner, sess.OwnerID)
	return c.Next()
}

func owner(c *fiber.Ctx) string {
	id, _ := c.Locals(localsOwner).(string)
	return id
}

func (s *Server) transcribe(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable upload"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable upload"})
	}
	if len(data) == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "empty audio"})
	}

	ctx := c.UserContext()
	digest := capture.Digest(data)
	log := s.logger.With("owner_id", owner(c), "digest", digest, "bytes", len(data))

	if s.cache != nil {
		text, ok, err := s.cache.CachedTranscript(ctx, digest)
		if err != nil {
			log.Warn("read transcription cache failed", "error", err)
		} else if ok {
			log.Debug("transcription cache hit")
			return c.JSON(fiber.Map{"transcript": text})
		}
	}

	start := time.Now()
	text, err := s.engine.Transcribe(ctx, fh.Filename, bytes.NewReader(data))
	if err != nil {
		log.Error("transcription failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	if text == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "empty transcript"})
	}
	log.Info("transcribed", "elapsed", time.Since(start), "chars", len(text))

	if s.cache != nil {
		if err := s.cache.CacheTranscript(ctx, digest, text); err != nil {
			log.Warn("write transcription cache failed", "error", err)
		}
	}
	return c.JSON(fiber.Map{"transcript": text})
}

func (s *Server) listTranscripts(c *fiber.Ctx) error {
	id := owner(c)
	if q := c.Query("owner"); q != "" && q != id {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "owner mismatch"})
	}
	records, err := s.store.List(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(records)
}

func (s *Server) createTranscript(c *fiber.Ctx) error {
	var rec history.NewRecord
	if err := c.BodyParser(&rec); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if strings.TrimSpace(rec.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`text` field is required"})
	}
	created, err := s.store.Create(c.UserContext(), owner(c), rec)
	if err != nil {
		return err
	}
	s.logger.Info("transcript created", "owner_id", created.OwnerID, "record_id", created.ID)
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) deleteTranscript(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid id"})
	}
	err = s.store.Delete(c.UserContext(), owner(c), int64(id))
	switch {
	case errors.Is(err, history.ErrNotFoundOrForbidden):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return err
	}
	s.logger.Info("transcript deleted", "owner_id", owner(c), "record_id", id)
	return c.SendStatus(fiber.StatusNoContent)
}
