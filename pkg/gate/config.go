package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-framegate/pkg/scene"
	"github.com/teslashibe/go-framegate/pkg/trigger"
)

// Defaults carried over from the frame-change detector's constructor.
const (
	DefaultBufferDurationMs = 100
	DefaultChangeThreshold  = 5.0
	DefaultFrameIntervalMs  = 20
)

var (
	// ErrInvalidThreshold is returned for a change threshold outside [0,100].
	ErrInvalidThreshold = errors.New("gate: change threshold must be within [0,100]")

	// ErrInvalidConfig is returned for any other unusable setting.
	ErrInvalidConfig = errors.New("gate: invalid config")

	// ErrInvalidTimestamp is returned when frame timestamps are in use and
	// a frame carries none, or one past the int64 millisecond range.
	ErrInvalidTimestamp = errors.New("gate: frame timestamp must be a positive unix millisecond value")
)

// Config holds detector configuration.
type Config struct {
	// BufferDurationMs and FrameIntervalMs describe the nominal frame
	// window. They are reported back by Settings and Stats but do not
	// affect gating.
	BufferDurationMs uint64
	FrameIntervalMs  uint64

	// ChangeThreshold is a percentage; the analyzer's anomaly threshold
	// is ChangeThreshold/100.
	ChangeThreshold float32

	// Policy controls cooldowns, confidences and Volatile gating.
	Policy trigger.Policy

	// Analyzer is the template for every pipeline the detector builds.
	// Its AnomalyThreshold is overwritten from ChangeThreshold.
	Analyzer scene.AnalyzerConfig

	// RebuildOnResize rebuilds the analyzer when the frame size changes
	// instead of rejecting the frame.
	RebuildOnResize bool

	// UseFrameTimestamps gates on the caller's timestamp instead of Clock.
	// A zero timestamp is then rejected with ErrInvalidTimestamp.
	UseFrameTimestamps bool

	Clock  clock.Clock
	Logger *slog.Logger
}

// Option is a functional option for configuring a Detector.
type Option func(*Config)

// WithBufferDuration sets the nominal buffer duration.
func WithBufferDuration(ms uint64) Option {
	return func(c *Config) { c.BufferDurationMs = ms }
}

// WithChangeThreshold sets the change threshold percentage.
func WithChangeThreshold(pct float32) Option {
	return func(c *Config) { c.ChangeThreshold = pct }
}

// WithFrameInterval sets the nominal interval between frames.
func WithFrameInterval(ms uint64) Option {
	return func(c *Config) { c.FrameIntervalMs = ms }
}

// WithPolicy sets the gating policy.
func WithPolicy(p trigger.Policy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithVolatileEnabled toggles Volatile gating on the current policy.
func WithVolatileEnabled(enabled bool) Option {
	return func(c *Config) { c.Policy.VolatileEnabled = enabled }
}

// WithAnalyzer sets the analyzer template.
func WithAnalyzer(a scene.AnalyzerConfig) Option {
	return func(c *Config) { c.Analyzer = a }
}

// WithRebuildOnResize enables rebuilding the analyzer on a size change.
func WithRebuildOnResize(enabled bool) Option {
	return func(c *Config) { c.RebuildOnResize = enabled }
}

// WithFrameTimestamps gates on caller-supplied timestamps.
func WithFrameTimestamps(enabled bool) Option {
	return func(c *Config) { c.UseFrameTimestamps = enabled }
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) { c.Clock = clk }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns the stock detector configuration.
func DefaultConfig() *Config {
	return &Config{
		BufferDurationMs: DefaultBufferDurationMs,
		ChangeThreshold:  DefaultChangeThreshold,
		FrameIntervalMs:  DefaultFrameIntervalMs,
		Policy:           trigger.DefaultPolicy(),
		Analyzer:         scene.DefaultAnalyzerConfig(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validateThreshold(c.ChangeThreshold); err != nil {
		return err
	}
	if c.FrameIntervalMs == 0 {
		return fmt.Errorf("%w: frame interval must be positive", ErrInvalidConfig)
	}
	return c.Policy.Validate()
}

// BufferFrames is the number of frames held in the buffer window after
// frames have been seen: min(frames, duration/interval).
func (c *Config) BufferFrames(frames uint64) int {
	if c.FrameIntervalMs == 0 {
		return 0
	}
	return int(min(frames, c.BufferDurationMs/c.FrameIntervalMs))
}

func validateThreshold(pct float32) error {
	if math.IsNaN(float64(pct)) || pct < 0 || pct > 100 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, pct)
	}
	return nil
}

// anomalyThreshold maps a change percentage onto the analyzer's [0,1] scale.
func anomalyThreshold(pct float32) float64 {
	return float64(pct) / 100
}
