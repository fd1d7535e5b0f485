// framegate: frame gating service.
// Accepts frames from cameras over WebSocket or REST, runs them through a
// scene analyzer and answers with a fire/suppress decision per frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-framegate/internal/config"
	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/gate"
	"github.com/teslashibe/go-framegate/pkg/scene/cvscene"
	"github.com/teslashibe/go-framegate/pkg/session"
	"github.com/teslashibe/go-framegate/pkg/web"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "framegate.yaml", "Path to YAML config")
	port       = flag.Int("port", 0, "HTTP server port (overrides config)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	threshold  = flag.Float64("threshold", -1, "Change threshold percentage 0-100 (overrides config)")
	noVolatile = flag.Bool("no-volatile", false, "Only fire on disturbed scenes")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log.Init(cfg.Log.Level)
	logger := log.Component("main")

	opts := cfg.DetectorOptions()
	sessions := session.NewManager(func() (*gate.Detector, error) {
		return gate.New(cvscene.New, opts...)
	})

	srv := web.NewServer(cfg.Addr(), sessions, web.WithRequestLog(cfg.Log.Level == "debug"))
	registerMetrics(srv.App(), srv)

	logger.Info("starting framegate",
		"version", version,
		"addr", cfg.Addr(),
		"change_threshold", cfg.Gate.ChangeThreshold,
		"volatile_enabled", cfg.Gate.Policy.VolatileEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	if err := sessions.Close(); err != nil {
		logger.Warn("close sessions", "error", err)
	}
}

// loadConfig layers file, environment and flags, in that order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *threshold >= 0 {
		cfg.Gate.ChangeThreshold = float32(*threshold)
	}
	if *noVolatile {
		cfg.Gate.Policy.VolatileEnabled = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerMetrics exposes camera hub counters in Prometheus text format.
func registerMetrics(app *fiber.App, srv *web.Server) {
	app.Get("/metrics", func(c *fiber.Ctx) error {
		stats := srv.Cameras().GetStats()
		return c.SendString(fmt.Sprintf(`# HELP framegate_cameras Connected camera count
# TYPE framegate_cameras gauge
framegate_cameras %d

# HELP framegate_frames_received Total frames received over websocket
# TYPE framegate_frames_received counter
framegate_frames_received %d

# HELP framegate_decisions Total decisions returned
# TYPE framegate_decisions counter
framegate_decisions %d

# HELP framegate_fires Total decisions that fired
# TYPE framegate_fires counter
framegate_fires %d

# HELP framegate_errors Total rejected camera messages
# TYPE framegate_errors counter
framegate_errors %d

# HELP framegate_dropped_events Dashboard events dropped on a full queue
# TYPE framegate_dropped_events counter
framegate_dropped_events %d
`, stats.CameraCount, stats.FramesReceived, stats.Decisions, stats.Fires, stats.Errors, srv.Events().Dropped()))
	})
}
