// Package gate is the inbound surface of the frame gate: it takes base64
// frames from a camera stream, decodes them, and asks the trigger engine
// whether the downstream consumer should be invoked.
//
// A Detector is safe for concurrent use. Decoding runs outside the lock;
// everything touching the engine is serialized.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/ingest"
	"github.com/teslashibe/go-framegate/pkg/scene"
	"github.com/teslashibe/go-framegate/pkg/trigger"
)

// Decision is the result of one ProcessFrame call.
type Decision struct {
	Fire               bool    `json:"fire"`
	Confidence         float32 `json:"confidence"`
	TrackedObjectCount int     `json:"tracked_object_count"`
	SceneState         string  `json:"scene_state"`
	FrameCount         uint64  `json:"frame_count"`
	TimestampMs        uint64  `json:"timestamp_ms"`
}

// ConfigUpdate carries optional overrides; nil fields are left alone.
type ConfigUpdate struct {
	BufferDurationMs *uint64  `json:"buffer_duration_ms,omitempty"`
	ChangeThreshold  *float32 `json:"change_threshold,omitempty"`
	FrameIntervalMs  *uint64  `json:"frame_interval_ms,omitempty"`
	VolatileEnabled  *bool    `json:"volatile_enabled,omitempty"`
}

// Settings is the detector's current configuration.
type Settings struct {
	FrameCount       uint64  `json:"frame_count"`
	ChangeThreshold  float32 `json:"change_threshold"`
	FrameIntervalMs  uint64  `json:"frame_interval_ms"`
	BufferDurationMs uint64  `json:"buffer_duration_ms"`
	VolatileEnabled  bool    `json:"volatile_enabled"`
}

// AnalysisInfo is the last scene label and the frame count.
type AnalysisInfo struct {
	Label      string `json:"label"`
	FrameCount uint64 `json:"frame_count"`
}

// Stats reports detector counters.
type Stats struct {
	LastTimestampMs uint64  `json:"last_timestamp_ms"`
	ChangeThreshold float32 `json:"change_threshold"`
	FrameIntervalMs uint64  `json:"frame_interval_ms"`
	BufferFrames    int     `json:"buffer_frames"`
	Frames          uint64  `json:"frames"`
	Fires           uint64  `json:"fires"`
	DecodeFailures  uint64  `json:"decode_failures"`
	Rejected        uint64  `json:"rejected"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
}

// Detector gates a single camera stream.
type Detector struct {
	mu     sync.Mutex
	cfg    Config
	engine *trigger.Engine
	clock  clock.Clock
	logger *slog.Logger

	lastTimestampMs uint64
	rejected        uint64
	decodeFailures  atomic.Uint64
}

// New creates a detector. The factory builds the scene analyzer once the
// first frame's dimensions are known.
func New(factory scene.Factory, opts ...Option) (*Detector, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("gate")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tmpl := cfg.Analyzer
	tmpl.AnomalyThreshold = anomalyThreshold(cfg.ChangeThreshold)

	engine, err := trigger.New(factory, tmpl,
		trigger.WithPolicy(cfg.Policy),
		trigger.WithClock(cfg.Clock),
		trigger.WithLogger(cfg.Logger),
		trigger.WithRebuildOnResize(cfg.RebuildOnResize),
	)
	if err != nil {
		return nil, err
	}
	cfg.Analyzer = tmpl

	return &Detector{
		cfg:    *cfg,
		engine: engine,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// ProcessFrame decodes one base64 frame and runs it through the gate.
// Decode failures are returned as *ingest.DecodeError before any state is
// touched; the caller should drop the frame and carry on.
func (d *Detector) ProcessFrame(frameB64 string, timestampMs uint64) (Decision, error) {
	frame, err := ingest.Decode(frameB64)
	if err != nil {
		d.decodeFailures.Add(1)
		return Decision{}, err
	}
	return d.process(frame, timestampMs)
}

// ProcessImage is ProcessFrame for callers holding undecoded image bytes.
func (d *Detector) ProcessImage(data []byte, timestampMs uint64) (Decision, error) {
	frame, err := ingest.DecodeBytes(data)
	if err != nil {
		d.decodeFailures.Add(1)
		return Decision{}, err
	}
	return d.process(frame, timestampMs)
}

func (d *Detector) process(frame *ingest.Frame, timestampMs uint64) (Decision, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	if d.cfg.UseFrameTimestamps {
		if timestampMs == 0 || timestampMs > math.MaxInt64 {
			d.rejected++
			return Decision{}, fmt.Errorf("%w: got %d", ErrInvalidTimestamp, timestampMs)
		}
		now = time.UnixMilli(int64(timestampMs))
	}

	res, err := d.engine.ProcessFrameAt(frame.Pix, frame.Width, frame.Height, now)
	if err != nil {
		d.rejected++
		if errors.Is(err, trigger.ErrDimensionMismatch) {
			d.logger.Warn("frame rejected", "error", err)
		}
		return Decision{}, err
	}
	d.lastTimestampMs = timestampMs

	return Decision{
		Fire:               res.Fire,
		Confidence:         res.Confidence,
		TrackedObjectCount: res.TrackedObjectCount,
		SceneState:         res.Label(),
		FrameCount:         d.engine.FrameCount(),
		TimestampMs:        timestampMs,
	}, nil
}

// Configure applies the non-nil overrides. A new change threshold is
// pushed into the live analyzer before Configure returns. Nothing is
// changed when an error is returned.
func (d *Detector) Configure(u ConfigUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ChangeThreshold != nil {
		if err := validateThreshold(*u.ChangeThreshold); err != nil {
			return err
		}
	}
	if u.FrameIntervalMs != nil && *u.FrameIntervalMs == 0 {
		return ErrInvalidConfig
	}

	if u.ChangeThreshold != nil {
		tmpl := d.engine.Template()
		tmpl.AnomalyThreshold = anomalyThreshold(*u.ChangeThreshold)
		if err := d.engine.Configure(tmpl); err != nil {
			return err
		}
		d.cfg.ChangeThreshold = *u.ChangeThreshold
		d.cfg.Analyzer = tmpl
	}
	if u.VolatileEnabled != nil {
		p := d.engine.Policy()
		p.VolatileEnabled = *u.VolatileEnabled
		if err := d.engine.SetPolicy(p); err != nil {
			return err
		}
		d.cfg.Policy = p
	}
	if u.BufferDurationMs != nil {
		d.cfg.BufferDurationMs = *u.BufferDurationMs
	}
	if u.FrameIntervalMs != nil {
		d.cfg.FrameIntervalMs = *u.FrameIntervalMs
	}

	d.logger.Info("detector configured",
		"change_threshold", d.cfg.ChangeThreshold,
		"frame_interval_ms", d.cfg.FrameIntervalMs,
		"buffer_duration_ms", d.cfg.BufferDurationMs,
		"volatile_enabled", d.cfg.Policy.VolatileEnabled)
	return nil
}

// SetPolicy replaces the gating policy.
func (d *Detector) SetPolicy(p trigger.Policy) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.engine.SetPolicy(p); err != nil {
		return err
	}
	d.cfg.Policy = p
	return nil
}

// Reset clears counters, cooldowns and the analyzer's tracking history.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.engine.Reset()
	d.lastTimestampMs = 0
	d.rejected = 0
	d.decodeFailures.Store(0)
}

// Settings returns the current configuration and frame count.
func (d *Detector) Settings() Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Settings{
		FrameCount:       d.engine.FrameCount(),
		ChangeThreshold:  d.cfg.ChangeThreshold,
		FrameIntervalMs:  d.cfg.FrameIntervalMs,
		BufferDurationMs: d.cfg.BufferDurationMs,
		VolatileEnabled:  d.cfg.Policy.VolatileEnabled,
	}
}

// AnalysisInfo returns the last scene label and frame count.
func (d *Detector) AnalysisInfo() AnalysisInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return AnalysisInfo{
		Label:      d.engine.LastState().String(),
		FrameCount: d.engine.FrameCount(),
	}
}

// SceneStatus reports cooldowns remaining as of the detector's clock.
func (d *Detector) SceneStatus() trigger.Status {
	return d.SceneStatusAt(d.clock.Now())
}

// SceneStatusAt reports cooldowns remaining as of now.
func (d *Detector) SceneStatusAt(now time.Time) trigger.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Status(now)
}

// Stats returns detector counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Stats{
		LastTimestampMs: d.lastTimestampMs,
		ChangeThreshold: d.cfg.ChangeThreshold,
		FrameIntervalMs: d.cfg.FrameIntervalMs,
		BufferFrames:    d.cfg.BufferFrames(d.engine.FrameCount()),
		Frames:          d.engine.FrameCount(),
		Fires:           d.engine.FireCount(),
		DecodeFailures:  d.decodeFailures.Load(),
		Rejected:        d.rejected,
	}
	if w, h, ok := d.engine.Dimensions(); ok {
		s.Width, s.Height = w, h
	}
	return s
}

// Close releases the analyzer.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Close()
}
