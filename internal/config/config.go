// Package config loads the frame gate server configuration from YAML and
// the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-framegate/pkg/gate"
	"github.com/teslashibe/go-framegate/pkg/scene"
	"github.com/teslashibe/go-framegate/pkg/trigger"
)

// Environment variables read by ApplyEnv.
const (
	EnvPort            = "FRAMEGATE_PORT"
	EnvLogLevel        = "FRAMEGATE_LOG_LEVEL"
	EnvChangeThreshold = "FRAMEGATE_CHANGE_THRESHOLD"
	EnvVolatileEnabled = "FRAMEGATE_VOLATILE_ENABLED"
)

// DefaultPort is the HTTP port used when nothing is configured.
const DefaultPort = 8080

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Log      LogConfig            `yaml:"log"`
	Gate     GateConfig           `yaml:"gate"`
	Analyzer scene.AnalyzerConfig `yaml:"analyzer"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// GateConfig configures every detector the server creates.
type GateConfig struct {
	BufferDurationMs   uint64         `yaml:"buffer_duration_ms"`
	ChangeThreshold    float32        `yaml:"change_threshold"`
	FrameIntervalMs    uint64         `yaml:"frame_interval_ms"`
	RebuildOnResize    bool           `yaml:"rebuild_on_resize"`
	UseFrameTimestamps bool           `yaml:"use_frame_timestamps"`
	Policy             trigger.Policy `yaml:"policy"`
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: DefaultPort},
		Log:    LogConfig{Level: "info"},
		Gate: GateConfig{
			BufferDurationMs: gate.DefaultBufferDurationMs,
			ChangeThreshold:  gate.DefaultChangeThreshold,
			FrameIntervalMs:  gate.DefaultFrameIntervalMs,
			Policy:           trigger.DefaultPolicy(),
		},
		Analyzer: scene.DefaultAnalyzerConfig(),
	}
}

// Load reads a YAML file over the defaults. A missing file is not an
// error and yields the defaults; an empty path does the same.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from FRAMEGATE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: EnvPort, Message: fmt.Sprintf("not a number: %q", v)}
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvChangeThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return &ConfigError{Field: EnvChangeThreshold, Message: fmt.Sprintf("not a number: %q", v)}
		}
		c.Gate.ChangeThreshold = float32(f)
	}
	if v := os.Getenv(EnvVolatileEnabled); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: EnvVolatileEnabled, Message: fmt.Sprintf("not a boolean: %q", v)}
		}
		c.Gate.Policy.VolatileEnabled = b
	}
	return nil
}

// Validate checks the configuration before any detector is built.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > math.MaxUint16 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("out of range: %d", c.Server.Port)}
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	if t := c.Gate.ChangeThreshold; math.IsNaN(float64(t)) || t < 0 || t > 100 {
		return &ConfigError{Field: "gate.change_threshold", Message: fmt.Sprintf("must be within [0, 100], got %v", t)}
	}
	if c.Gate.FrameIntervalMs == 0 {
		return &ConfigError{Field: "gate.frame_interval_ms", Message: "must be positive"}
	}
	if err := c.Gate.Policy.Validate(); err != nil {
		return &ConfigError{Field: "gate.policy", Message: err.Error()}
	}

	// Dimensions come from the first frame.
	probe := c.Analyzer.WithDimensions(1, 1)
	if err := probe.Validate(); err != nil {
		return &ConfigError{Field: "analyzer", Message: err.Error()}
	}
	return nil
}

// Addr returns the listen address for fiber.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DetectorOptions converts the gate section into detector options.
func (c *Config) DetectorOptions() []gate.Option {
	return []gate.Option{
		gate.WithBufferDuration(c.Gate.BufferDurationMs),
		gate.WithChangeThreshold(c.Gate.ChangeThreshold),
		gate.WithFrameInterval(c.Gate.FrameIntervalMs),
		gate.WithPolicy(c.Gate.Policy),
		gate.WithAnalyzer(c.Analyzer),
		gate.WithRebuildOnResize(c.Gate.RebuildOnResize),
		gate.WithFrameTimestamps(c.Gate.UseFrameTimestamps),
	}
}
