// Package web serves the frame gate's REST API and the dashboard event
// stream, and mounts the camera websocket endpoint.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlog "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/cloud"
	"github.com/teslashibe/go-framegate/pkg/hub"
	"github.com/teslashibe/go-framegate/pkg/protocol"
	"github.com/teslashibe/go-framegate/pkg/session"
)

// recentLimit bounds the decision history kept for GET /api/events.
const recentLimit = 200

// Server is the frame gate HTTP server
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	sessions *session.Manager
	cameras  *cloud.Hub
	events   *hub.Hub

	// Recent decisions, oldest first
	recent   []protocol.DecisionData
	recentMu sync.RWMutex

	requestLog bool

	runOnce sync.Once
	stop    context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithRequestLog logs every HTTP request.
func WithRequestLog(enabled bool) Option {
	return func(s *Server) { s.requestLog = enabled }
}

// NewServer creates a server for the given session manager. addr is
// passed to fiber's Listen.
func NewServer(addr string, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		logger:   log.Component("web"),
		sessions: sessions,
		cameras:  cloud.NewHub(sessions),
		events:   hub.New("events"),
		recent:   make([]protocol.DecisionData, 0, recentLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cameras.OnDecision(s.publish)

	app := fiber.New(fiber.Config{
		AppName:               "framegate",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	if s.requestLog {
		app.Use(fiberlog.New())
	}

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/events", s.handleRecentEvents)

	group := api.Group("/sessions")
	group.Get("/", s.handleListSessions)
	group.Post("/", s.handleCreateSession)
	group.Delete("/:id", s.handleDeleteSession)
	group.Post("/:id/frames", s.handleProcessFrame)
	group.Post("/:id/configure", s.handleConfigure)
	group.Post("/:id/reset", s.handleReset)
	group.Get("/:id/config", s.handleSettings)
	group.Get("/:id/analysis", s.handleAnalysis)
	group.Get("/:id/status", s.handleStatus)
	group.Get("/:id/stats", s.handleStats)

	s.cameras.RegisterAPIRoutes(api)

	// WebSocket routes
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	s.cameras.RegisterRoutes(app)

	s.app = app
	return s
}

// SetLogger replaces the logger of the server and its hubs.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
	s.cameras.SetLogger(l)
	s.events.SetLogger(l)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Cameras returns the camera websocket hub.
func (s *Server) Cameras() *cloud.Hub {
	return s.cameras
}

// Events returns the dashboard broadcast hub.
func (s *Server) Events() *hub.Hub {
	return s.events
}

// Run starts the event hub without listening. It is safe to call more
// than once.
func (s *Server) Run() {
	s.runOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		go s.events.Run(ctx)
	})
}

// Start runs the event hub and listens until Shutdown.
func (s *Server) Start() error {
	s.Run()
	s.logger.Info("listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync() {
	s.Run()
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("server stopped", "error", err)
		}
	}()
}

// Shutdown stops the HTTP listener and disconnects dashboard clients.
func (s *Server) Shutdown() error {
	return s.ShutdownWithContext(context.Background())
}

// ShutdownWithContext is Shutdown bounded by ctx.
func (s *Server) ShutdownWithContext(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.stop != nil {
		s.stop()
		<-s.events.Done()
	}
	return err
}

// publish records a decision and fans it out to dashboards.
func (s *Server) publish(d protocol.DecisionData) {
	s.recentMu.Lock()
	if len(s.recent) == recentLimit {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:recentLimit-1]
	}
	s.recent = append(s.recent, d)
	s.recentMu.Unlock()

	if err := s.events.BroadcastJSON(d); err != nil {
		s.logger.Warn("broadcast decision", "error", err)
	}
}
