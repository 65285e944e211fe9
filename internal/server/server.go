// Package server exposes a measurement session over HTTP: fix ingestion,
// session control, exports, run history and a live websocket stream.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/Dr-Fate/RegularityTracker/internal/config"
	"github.com/Dr-Fate/RegularityTracker/internal/service"
	"github.com/Dr-Fate/RegularityTracker/internal/session"
	"github.com/Dr-Fate/RegularityTracker/internal/source"
	"github.com/Dr-Fate/RegularityTracker/internal/stream"
)

const shutdownTimeout = 5 * time.Second

// Server wires the HTTP routes to one session
type Server struct {
	App      *fiber.App
	Cfg      config.ServerConfig
	Session  *session.Session
	Recorder *service.Recorder
	Stream   *stream.Hub
	Limiter  *source.RateLimiter

	log *zap.SugaredLogger
}

// NewServer creates the fiber app and registers every route. hub may be nil,
// in which case a local-only hub is used.
func NewServer(cfg config.ServerConfig, sess *session.Session, rec *service.Recorder, hub *stream.Hub) *Server {
	if hub == nil {
		hub = stream.NewHub(nil)
	}
	if cfg.Channel == "" {
		cfg.Channel = "live"
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:      app,
		Cfg:      cfg,
		Session:  sess,
		Recorder: rec,
		Stream:   hub,
		Limiter:  source.NewRateLimiter(cfg.FixesPerMinute, time.Duration(cfg.MinFixIntervalMs)*time.Millisecond),
		log:      zap.S().Named("server"),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "state": s.Session.Snapshot().State})
	})

	api := s.App.Group("/api")
	registerSessionRoutes(api.Group("/session"), s)
	api.Post("/fixes", s.handlePushFixes)
	api.Get("/export", s.handleExport)
	api.Post("/export", s.handleSaveExport)
	registerRunRoutes(api.Group("/runs"), s)
	registerLiveRoutes(s.App.Group("/ws"), s)
}

// errorHandler renders every error as {"error": "..."}
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// Run streams snapshots to the hub and serves on Cfg.ListenAddr until ctx is
// cancelled
func (s *Server) Run(ctx context.Context) error {
	snaps, cancel := s.Session.Subscribe()
	defer cancel()
	go func() {
		if err := s.Stream.Pump(ctx, s.Cfg.Channel, snaps); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Errorw("snapshot stream stopped", "error", err)
		}
	}()

	errc := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", s.Cfg.ListenAddr)
		errc <- s.App.Listen(s.Cfg.ListenAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return nil
	}
}
