// Package web serves the assistant dashboard: a JSON control API, live
// state over websocket and Prometheus metrics.
package web

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/kavach/pkg/dispatch"
	"github.com/teslashibe/kavach/pkg/hub"
	"github.com/teslashibe/kavach/pkg/journal"
	"github.com/teslashibe/kavach/pkg/metrics"
	"github.com/teslashibe/kavach/pkg/voice"
)

// Controller runs the actions the API exposes.
type Controller interface {
	HandleCommand(ctx context.Context, cmd voice.Command)
	Press(ctx context.Context, b dispatch.Button) error
	StartLearn(ctx context.Context) error
	CancelLearn()
}

// EventLog lists recent journal entries.
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr        string `yaml:"addr" json:"addr"`
	StaticDir   string `yaml:"static_dir" json:"static_dir"`
	EventsLimit int    `yaml:"events_limit" json:"events_limit"`
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		EventsLimit: 50,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("web: addr is required")
	}
	if c.EventsLimit <= 0 {
		return errors.New("web: events_limit must be positive")
	}
	return nil
}

// Deps are the server's collaborators. Events and the probes may be nil.
type Deps struct {
	Display    *Display
	Hub        *hub.Hub
	Controller Controller
	Events     EventLog

	Learning  func() bool
	Connected func() bool
	Playing   func() bool
}

// Server is the dashboard server.
type Server struct {
	cfg    Config
	deps   Deps
	app    *fiber.App
	logger *slog.Logger
}

// NewServer builds the fiber app and its routes.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Display == nil || deps.Hub == nil || deps.Controller == nil {
		return nil, errors.New("web: display, hub and controller are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Kavach",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Post("/learn", s.handleStartLearn)
	api.Delete("/learn", s.handleCancelLearn)
	api.Post("/commands/:name", s.handleCommand)
	api.Post("/button/:press", s.handleButton)

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled. The hub and the display render loop
// run alongside and stop with it.
func (s *Server) Run(ctx context.Context) error {
	go s.deps.Hub.Run(ctx)
	go s.deps.Display.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web dashboard listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("web shutdown failed", "error", err)
		}
		return nil
	}
}
