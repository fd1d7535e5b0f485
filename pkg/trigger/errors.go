package trigger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrInvalidPolicy is returned when a Policy fails validation.
	ErrInvalidPolicy = errors.New("trigger: invalid policy")

	// ErrInvalidFrame is returned when the pixel buffer does not match the
	// stated dimensions.
	ErrInvalidFrame = errors.New("trigger: invalid frame")

	// ErrDimensionMismatch is returned when a frame's size differs from the
	// size the analyzer pipeline was built with.
	ErrDimensionMismatch = errors.New("trigger: frame dimensions changed")

	// ErrPipeline is returned when the analyzer pipeline cannot be built.
	ErrPipeline = errors.New("trigger: cannot build analyzer pipeline")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("trigger: engine closed")
)

// DimensionError reports a frame whose size differs from the live
// pipeline's.
type DimensionError struct {
	WantWidth, WantHeight int
	GotWidth, GotHeight   int
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("trigger: frame is %dx%d but pipeline was built for %dx%d",
		e.GotWidth, e.GotHeight, e.WantWidth, e.WantHeight)
}

// Is matches ErrDimensionMismatch.
func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
