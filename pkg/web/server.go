// Package web serves the actuator host's status API and live event stream.
package web

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gesture/pkg/hub"
	"github.com/teslashibe/go-gesture/pkg/journal"
	"github.com/teslashibe/go-gesture/pkg/motion"
	"github.com/teslashibe/go-gesture/pkg/protocol"
	"github.com/teslashibe/go-gesture/pkg/receiver"
)

const (
	statusInterval  = time.Second
	shutdownTimeout = 2 * time.Second
)

// Executor is the part of motion.Executor the server drives.
type Executor interface {
	Execute(cmd string)
	State() motion.State
}

// Positioner reports object positions (motion.Scene).
type Positioner interface {
	Position(name string) (motion.Vec3, bool)
}

// ReceiverStats reports command receiver counters.
type ReceiverStats interface {
	Stats() receiver.Stats
}

// History lists journaled events.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Deps wires the server to the host components. Scene, Receiver and
// History are optional.
type Deps struct {
	Executor Executor
	Object   string
	Scene    Positioner
	Receiver ReceiverStats
	History  History
	Logger   *slog.Logger
}

// Status is the GET /api/status payload.
type Status struct {
	Executor motion.State    `json:"executor"`
	Object   string          `json:"object"`
	Position *motion.Vec3    `json:"position,omitempty"`
	Receiver *receiver.Stats `json:"receiver,omitempty"`
	Clients  int             `json:"ws_clients"`
}

// Server is the host status server
type Server struct {
	app    *fiber.App
	deps   Deps
	events *hub.Hub
	logger *slog.Logger
}

// NewServer creates the server and registers routes.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		deps:   deps,
		events: hub.New("events", deps.Logger),
		logger: deps.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Gesture Actuator Host",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/scene", s.handleScene)
	api.Get("/history", s.handleHistory)
	api.Post("/command/:cmd", s.handleCommand)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app (for tests).
func (s *Server) App() *fiber.App {
	return s.app
}

// Notify broadcasts an executor event to websocket clients.
func (s *Server) Notify(e motion.Event) {
	msg, err := protocol.NewMotionMessage(e)
	if err != nil {
		s.logger.Warn("encode event", "error", err)
		return
	}
	if err := s.events.BroadcastJSON(msg); err != nil {
		s.logger.Warn("broadcast event", "error", err)
	}
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.events.Run(ctx)
	go s.statusLoop(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("status server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// statusLoop pushes a status message to websocket clients once per second.
func (s *Server) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.events.ClientCount() == 0 {
				continue
			}
			st := s.status()
			msg, err := protocol.NewStatusMessage(protocol.StatusData{
				Executor: st.Executor,
				Position: st.Position,
				Clients:  st.Clients,
			})
			if err == nil {
				_ = s.events.BroadcastJSON(msg)
			}
		}
	}
}

func (s *Server) status() Status {
	st := Status{
		Executor: s.deps.Executor.State(),
		Object:   s.deps.Object,
		Clients:  s.events.ClientCount(),
	}
	if s.deps.Scene != nil {
		if p, ok := s.deps.Scene.Position(s.deps.Object); ok {
			st.Position = &p
		}
	}
	if s.deps.Receiver != nil {
		rs := s.deps.Receiver.Stats()
		st.Receiver = &rs
	}
	return st
}
