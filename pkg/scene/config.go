package scene

import (
	"errors"
	"fmt"
)

// Sentinel errors for analyzer configuration and input.
var (
	// ErrInvalidConfig is returned when an AnalyzerConfig fails validation.
	ErrInvalidConfig = errors.New("scene: invalid analyzer config")

	// ErrFrameSize is returned when a frame does not match the pipeline
	// dimensions.
	ErrFrameSize = errors.New("scene: frame size does not match pipeline")
)

// AnalyzerConfig fixes everything an analyzer needs at construction time.
// A pipeline never changes its configuration; build a new one instead.
type AnalyzerConfig struct {
	// Frame dimensions in pixels.
	Width  int `yaml:"-" json:"width"`
	Height int `yaml:"-" json:"height"`

	// ChunkSize is the edge length of one analysis grid cell in pixels.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// PersistenceAge is the number of frames a blob must persist before
	// it counts as significant. Also the calibration length.
	PersistenceAge int `yaml:"persistence_age" json:"persistence_age"`

	// MinBlobSize is the smallest blob area in pixels that is tracked.
	MinBlobSize int `yaml:"min_blob_size" json:"min_blob_size"`

	// SizeDeviation filters blobs whose area jumps by more than this
	// fraction between frames.
	SizeDeviation float64 `yaml:"size_deviation" json:"size_deviation"`

	// AnomalyThreshold is the foreground share (0-1) of a single chunk
	// above which that chunk counts as changed. Scene states are decided
	// from the fraction of changed chunks, see DisturbanceEntry.
	AnomalyThreshold float64 `yaml:"anomaly_threshold" json:"anomaly_threshold"`

	// DisturbanceEntry and DisturbanceExit are changed-chunk fractions.
	// At or above entry the scene is disturbed. Between exit and entry a
	// disturbed scene stays disturbed and any other scene is volatile.
	// Below exit it is stable.
	DisturbanceEntry float64 `yaml:"disturbance_entry" json:"disturbance_entry"`
	DisturbanceExit  float64 `yaml:"disturbance_exit" json:"disturbance_exit"`

	// ConfirmationFrames is how many consecutive frames must agree before
	// the disturbed state is entered or left.
	ConfirmationFrames int `yaml:"confirmation_frames" json:"confirmation_frames"`
}

// DefaultAnalyzerConfig returns the defaults used when nothing is configured.
// Width and Height are left zero; the engine fills them from the first frame.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		ChunkSize:          16,
		PersistenceAge:     10,
		MinBlobSize:        64,
		SizeDeviation:      0.5,
		AnomalyThreshold:   0.05, // 5% change threshold
		DisturbanceEntry:   0.15,
		DisturbanceExit:    0.08,
		ConfirmationFrames: 3,
	}
}

// WithDimensions returns a copy of c bound to the given frame size.
func (c AnalyzerConfig) WithDimensions(width, height int) AnalyzerConfig {
	c.Width = width
	c.Height = height
	return c
}

// Validate checks that the configuration can build a pipeline.
func (c AnalyzerConfig) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.ChunkSize <= 0:
		return fmt.Errorf("%w: chunk size %d", ErrInvalidConfig, c.ChunkSize)
	case c.PersistenceAge < 0:
		return fmt.Errorf("%w: persistence age %d", ErrInvalidConfig, c.PersistenceAge)
	case c.MinBlobSize < 0:
		return fmt.Errorf("%w: min blob size %d", ErrInvalidConfig, c.MinBlobSize)
	case c.AnomalyThreshold < 0 || c.AnomalyThreshold > 1:
		return fmt.Errorf("%w: anomaly threshold %v outside [0,1]", ErrInvalidConfig, c.AnomalyThreshold)
	case c.DisturbanceExit > c.DisturbanceEntry:
		return fmt.Errorf("%w: disturbance exit %v above entry %v", ErrInvalidConfig, c.DisturbanceExit, c.DisturbanceEntry)
	case c.ConfirmationFrames < 1:
		return fmt.Errorf("%w: confirmation frames %d", ErrInvalidConfig, c.ConfirmationFrames)
	}
	return nil
}

// Pixels returns Width*Height.
func (c AnalyzerConfig) Pixels() int {
	return c.Width * c.Height
}
