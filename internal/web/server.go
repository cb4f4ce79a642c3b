// Package web serves the HTTP and WebSocket surface of quorum.
package web

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/metalagman/quorum/internal/events"
	"github.com/metalagman/quorum/internal/run"
	"github.com/metalagman/quorum/internal/telemetry"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// Runs is the part of run.Manager the server exposes.
type Runs interface {
	Create(ctx context.Context, in run.Inputs) (run.Run, error)
	Status(ctx context.Context, runID string) (run.Run, error)
	List(ctx context.Context) ([]run.Run, error)
	Events(ctx context.Context, runID string, afterSeq int64) ([]events.Event, error)
	Subscribe(runID string) *events.Subscription
}

// Server provides the API handlers and state.
type Server struct {
	runs    Runs
	metrics *telemetry.Metrics
	// terminal runs never change, so their status is served from memory.
	finished *cache.Cache
	app      *fiber.App
}

// NewServer creates a server. cacheTTL bounds how long finished runs stay cached.
func NewServer(runs Runs, metrics *telemetry.Metrics, cacheTTL time.Duration) *Server {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	s := &Server{
		runs:     runs,
		metrics:  metrics,
		finished: cache.New(cacheTTL, 2*cacheTTL),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "quorum",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())
	s.routes()
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })
	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	api := s.app.Group("/api")
	api.Post("/runs", s.handleCreate)
	api.Get("/runs", s.handleList)
	api.Get("/runs/:id", s.handleStatus)
	api.Get("/runs/:id/events", s.handleEvents)

	ws := s.app.Group("/ws")
	ws.Use(func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	ws.Get("/runs/:id", websocket.New(s.handleStream))
}

func (s *Server) handleCreate(c *fiber.Ctx) error {
	var in run.Inputs
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	r, err := s.runs.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(r)
}

func (s *Server) handleList(c *fiber.Ctx) error {
	runs, err := s.runs.List(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(runs)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if cached, ok := s.finished.Get(id); ok {
		return c.JSON(cached)
	}
	r, err := s.runs.Status(c.UserContext(), id)
	if err != nil {
		return err
	}
	if run.Terminal(r.Status) {
		s.finished.SetDefault(id, r)
	}
	return c.JSON(r)
}

func (s *Server) handleEvents(c *fiber.Ctx) error {
	after := c.QueryInt("after", 0)
	if after < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "after must be non-negative")
	}
	evs, err := s.runs.Events(c.UserContext(), c.Params("id"), int64(after))
	if err != nil {
		return err
	}
	return c.JSON(evs)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, run.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, run.ErrInvalidInputs):
		code = fiber.StatusBadRequest
	}
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
