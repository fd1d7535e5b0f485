// Package trigger decides, frame by frame, whether an expensive downstream
// action should fire.
//
// The Engine owns the external scene analyzer, feeds it each frame, and
// turns the resulting scene state into a fire/suppress decision with a
// confidence score. Volatile and Disturbed each have their own cooldown so
// a flapping scene cannot cause uncontrolled firing in either state.
//
// An Engine is single-threaded: one ProcessFrame call must complete before
// the next starts. Wrap it (see package gate) when sharing across goroutines.
package trigger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/scene"
)

// Result is the decision for one frame.
type Result struct {
	Fire               bool        `json:"fire"`
	Confidence         float32     `json:"confidence"`
	TrackedObjectCount int         `json:"tracked_object_count"`
	SceneState         scene.State `json:"scene_state"`
}

// Label returns the scene state label for external logging.
func (r Result) Label() string {
	return r.SceneState.String()
}

// Cooldowns records when each gated state last fired. A zero time means
// the state has never fired and is eligible immediately.
type Cooldowns struct {
	Volatile  time.Time
	Disturbed time.Time
}

// Status is a read-only view of the gate's scene and cooldown state.
type Status struct {
	Label              string        `json:"label"`
	VolatileRemaining  time.Duration `json:"volatile_remaining"`
	DisturbedRemaining time.Duration `json:"disturbed_remaining"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the gating policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock sets the time source sampled by ProcessFrame and Now.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRebuildOnResize makes a frame of a new size discard and rebuild the
// pipeline instead of failing with a DimensionError.
func WithRebuildOnResize(enabled bool) Option {
	return func(e *Engine) { e.rebuildOnResize = enabled }
}

// Engine is the trigger decision engine.
type Engine struct {
	factory         scene.Factory
	template        scene.AnalyzerConfig
	policy          Policy
	clock           clock.Clock
	logger          *slog.Logger
	rebuildOnResize bool

	pipeline      scene.Pipeline
	width, height int

	frames    uint64
	fires     uint64
	cooldowns Cooldowns
	lastState scene.State
	closed    bool
}

// New creates an engine. The analyzer pipeline is not built until the
// first frame arrives, since it needs that frame's dimensions.
func New(factory scene.Factory, template scene.AnalyzerConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		factory:   factory,
		template:  template,
		policy:    DefaultPolicy(),
		clock:     clock.New(),
		lastState: scene.Calibrating,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.Component("trigger")
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: nil factory", ErrPipeline)
	}
	if err := e.policy.Validate(); err != nil {
		return nil, err
	}
	if err := validateTemplate(template); err != nil {
		return nil, err
	}
	return e, nil
}

// Now samples the engine's clock.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// ProcessFrame runs one frame through the analyzer and gating policy,
// sampling the clock once for all cooldown arithmetic.
func (e *Engine) ProcessFrame(pix []byte, width, height int) (Result, error) {
	return e.ProcessFrameAt(pix, width, height, e.clock.Now())
}

// ProcessFrameAt is ProcessFrame with an explicit timestamp.
// No state is mutated when an error is returned.
func (e *Engine) ProcessFrameAt(pix []byte, width, height int, now time.Time) (Result, error) {
	if e.closed {
		return Result{}, ErrClosed
	}
	if width <= 0 || height <= 0 || len(pix) != width*height {
		return Result{}, fmt.Errorf("%w: %d bytes for %dx%d", ErrInvalidFrame, len(pix), width, height)
	}

	if err := e.ensurePipeline(width, height); err != nil {
		return Result{}, err
	}

	analysis, err := e.pipeline.ProcessFrame(pix)
	if err != nil {
		return Result{}, fmt.Errorf("trigger: analyze frame: %w", err)
	}

	e.frames++
	e.lastState = analysis.State

	res := e.decide(analysis, now)
	if res.Fire {
		e.fires++
		e.logger.Debug("trigger fired",
			"state", res.Label(),
			"confidence", res.Confidence,
			"tracked", res.TrackedObjectCount,
			"frame", e.frames)
	}
	return res, nil
}

// decide applies the state-dependent gating table.
func (e *Engine) decide(a scene.Analysis, now time.Time) Result {
	res := Result{
		SceneState:         a.State,
		TrackedObjectCount: len(a.Tracked),
	}

	switch a.State {
	case scene.Volatile:
		if !e.policy.VolatileEnabled {
			return res
		}
		if eligible(e.cooldowns.Volatile, e.policy.VolatileCooldown, now) {
			e.cooldowns.Volatile = now
			res.Fire = true
			res.Confidence = e.policy.VolatileConfidence
		}

	case scene.Disturbed:
		if eligible(e.cooldowns.Disturbed, e.policy.DisturbedCooldown, now) {
			e.cooldowns.Disturbed = now
			res.Fire = true
			res.Confidence = e.policy.DisturbedConfidence(scene.MomentCount(a.Report))
		}

	default:
		// Calibrating and Stable never fire.
	}
	return res
}

func eligible(last time.Time, cooldown time.Duration, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= cooldown
}

func remaining(last time.Time, cooldown time.Duration, now time.Time) time.Duration {
	if last.IsZero() {
		return 0
	}
	r := last.Add(cooldown).Sub(now)
	if r < 0 {
		return 0
	}
	return r
}

// ensurePipeline builds the pipeline on the first frame and enforces the
// fixed dimensions afterwards.
func (e *Engine) ensurePipeline(width, height int) error {
	if e.pipeline != nil {
		if width == e.width && height == e.height {
			return nil
		}
		if !e.rebuildOnResize {
			return &DimensionError{
				WantWidth: e.width, WantHeight: e.height,
				GotWidth: width, GotHeight: height,
			}
		}
		e.logger.Info("frame size changed, rebuilding analyzer",
			"from", fmt.Sprintf("%dx%d", e.width, e.height),
			"to", fmt.Sprintf("%dx%d", width, height))
	}

	p, err := e.build(e.template, width, height)
	if err != nil {
		return err
	}
	e.swap(p, width, height)
	return nil
}

func (e *Engine) build(template scene.AnalyzerConfig, width, height int) (scene.Pipeline, error) {
	cfg := template.WithDimensions(width, height)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipeline, err)
	}
	p, err := e.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipeline, err)
	}
	e.logger.Info("analyzer pipeline built",
		"width", width,
		"height", height,
		"anomaly_threshold", cfg.AnomalyThreshold)
	return p, nil
}

func (e *Engine) swap(p scene.Pipeline, width, height int) {
	if e.pipeline != nil {
		if err := e.pipeline.Close(); err != nil {
			e.logger.Warn("closing previous analyzer pipeline", "error", err)
		}
	}
	e.pipeline = p
	e.width, e.height = width, height
}

// Configure replaces the analyzer template. If a pipeline is already live
// it is rebuilt synchronously with the new template and the current
// dimensions; on failure the old pipeline stays in place.
func (e *Engine) Configure(template scene.AnalyzerConfig) error {
	if e.closed {
		return ErrClosed
	}
	if err := validateTemplate(template); err != nil {
		return err
	}
	if e.pipeline != nil {
		p, err := e.build(template, e.width, e.height)
		if err != nil {
			return err
		}
		e.swap(p, e.width, e.height)
		e.lastState = scene.Calibrating
	}
	e.template = template
	return nil
}

// Template returns the analyzer template used for the next build.
func (e *Engine) Template() scene.AnalyzerConfig {
	return e.template
}

// SetPolicy replaces the gating policy. Cooldown timestamps are kept.
func (e *Engine) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.policy = p
	return nil
}

// Policy returns the current gating policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Reset clears the frame counter and both cooldowns, and resets the
// analyzer's tracking history so the next eligible frame fires at once.
func (e *Engine) Reset() {
	e.frames = 0
	e.fires = 0
	e.cooldowns = Cooldowns{}
	e.lastState = scene.Calibrating
	if e.pipeline != nil {
		e.pipeline.Reset()
	}
	e.logger.Info("engine reset")
}

// Status reports the last scene state and the cooldown time left for each
// gated state. It does not mutate anything.
func (e *Engine) Status(now time.Time) Status {
	return Status{
		Label:              e.lastState.String(),
		VolatileRemaining:  remaining(e.cooldowns.Volatile, e.policy.VolatileCooldown, now),
		DisturbedRemaining: remaining(e.cooldowns.Disturbed, e.policy.DisturbedCooldown, now),
	}
}

// Cooldowns returns the last fire times.
func (e *Engine) Cooldowns() Cooldowns {
	return e.cooldowns
}

// FrameCount returns the number of frames analyzed since creation or Reset.
func (e *Engine) FrameCount() uint64 {
	return e.frames
}

// FireCount returns the number of fires since creation or Reset.
func (e *Engine) FireCount() uint64 {
	return e.fires
}

// LastState returns the scene state of the most recent frame.
func (e *Engine) LastState() scene.State {
	return e.lastState
}

// Dimensions returns the live pipeline's frame size, or ok=false when no
// pipeline has been built yet.
func (e *Engine) Dimensions() (width, height int, ok bool) {
	if e.pipeline == nil {
		return 0, 0, false
	}
	return e.width, e.height, true
}

// DropPipeline closes the live pipeline. The next frame builds a new one
// from its own dimensions.
func (e *Engine) DropPipeline() error {
	if e.pipeline == nil {
		return nil
	}
	err := e.pipeline.Close()
	e.pipeline = nil
	e.width, e.height = 0, 0
	e.lastState = scene.Calibrating
	return err
}

// Close releases the pipeline. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.DropPipeline()
}

// validateTemplate checks everything except the dimensions, which are only
// known once a frame arrives.
func validateTemplate(t scene.AnalyzerConfig) error {
	if err := t.WithDimensions(1, 1).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPipeline, err)
	}
	return nil
}
