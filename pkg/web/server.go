// Package web serves pipeline status and streams avatar pose to viewers.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-avatar/pkg/hub"
	"github.com/teslashibe/go-avatar/pkg/media"
	"github.com/teslashibe/go-avatar/pkg/render"
	"github.com/teslashibe/go-avatar/pkg/rig"
	"github.com/teslashibe/go-avatar/pkg/signal"
	"github.com/teslashibe/go-avatar/pkg/tracking"
)

// Status is the pipeline state reported by /api/status.
type Status struct {
	Session   string                 `json:"session"`
	Channel   string                 `json:"channel"`
	Uptime    string                 `json:"uptime"`
	Tracking  tracking.Stats         `json:"tracking"`
	Render    render.Stats           `json:"render"`
	Media     map[string]media.State `json:"media"`
	Binding   rig.Report             `json:"binding"`
	Viewers   int                    `json:"viewers"`
	HasSignal bool                   `json:"has_signal"`
}

// Backend is the running pipeline as seen by the server.
type Backend interface {
	Status() Status
	Signal() (signal.Snapshot, bool)
	ToggleMedia(k media.Kind) (media.State, error)
}

// Config holds server settings.
type Config struct {
	Addr      string
	StaticDir string
}

// Server is the status and pose stream server.
type Server struct {
	cfg     Config
	app     *fiber.App
	backend Backend
	logger  *slog.Logger

	poseHub    *hub.Hub
	previewHub *hub.Hub

	ctx context.Context
}

// NewServer creates a server for backend.
func NewServer(cfg Config, backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		cfg:        cfg,
		backend:    backend,
		logger:     logger,
		poseHub:    hub.New("pose", logger),
		previewHub: hub.New("preview", logger),
		ctx:        context.Background(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-avatar",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/pose", s.handlePose)
	api.Post("/media/:kind/toggle", s.handleToggleMedia)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/pose", websocket.New(s.handleHubWS(s.poseHub)))
	app.Get("/ws/preview", websocket.New(s.handleHubWS(s.previewHub)))

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// PoseHub returns the hub pose frames are published on.
func (s *Server) PoseHub() *hub.Hub {
	return s.poseHub
}

// Viewers returns the number of connected pose viewers.
func (s *Server) Viewers() int {
	return s.poseHub.Viewers()
}

// SendPreviewFrame sends a camera JPEG to preview viewers.
func (s *Server) SendPreviewFrame(jpeg []byte) {
	s.previewHub.PublishBinary(jpeg)
}

// Run starts the hubs and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.ctx = ctx
	go s.poseHub.Run(ctx)
	go s.previewHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	}
}
