// Package scene defines the contract between the gate and the external scene
// analyzer. The analyzer classifies each grayscale frame into a coarse scene
// state, optionally reports significant moments, and lists the blobs it is
// tracking. The gate only ever talks to it through Pipeline.
package scene

import (
	"fmt"
	"strings"
)

// State is the analyzer's belief about overall scene activity, ordered from
// "no actionable change" to "urgent change".
type State int

const (
	// Calibrating means the analyzer is still establishing a baseline.
	Calibrating State = iota
	// Stable means nothing actionable is happening.
	Stable
	// Volatile means the scene is changing but nothing novel is confirmed.
	Volatile
	// Disturbed means urgent novel activity.
	Disturbed
)

var stateNames = [...]string{
	Calibrating: "calibrating",
	Stable:      "stable",
	Volatile:    "volatile",
	Disturbed:   "disturbed",
}

// String returns the lowercase label used in logs and on the wire.
func (s State) String() string {
	if s < Calibrating || s > Disturbed {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseState parses a label produced by String.
func ParseState(label string) (State, error) {
	for i, name := range stateNames {
		if strings.EqualFold(label, name) {
			return State(i), nil
		}
	}
	return Calibrating, fmt.Errorf("scene: unknown state %q", label)
}

// Moment is a tracked object or event entering or leaving significance.
type Moment struct {
	ObjectID uint64
	Age      int // frames the object has persisted
	Area     int // pixels
}

// Report is the analyzer's significance report for one frame. The concrete
// variants are NoReport and SignificantMoments.
type Report interface {
	isReport()
}

// NoReport carries nothing of significance.
type NoReport struct{}

func (NoReport) isReport() {}

// SignificantMoments lists objects that became significant this frame and
// objects whose significant episode just completed.
type SignificantMoments struct {
	New       []Moment
	Completed []Moment
}

func (SignificantMoments) isReport() {}

// Count returns the number of new plus completed moments.
func (m SignificantMoments) Count() int {
	return len(m.New) + len(m.Completed)
}

// MomentCount returns the number of moments in r, or 0 when r is not the
// significant-moments variant.
func MomentCount(r Report) int {
	switch v := r.(type) {
	case SignificantMoments:
		return v.Count()
	case *SignificantMoments:
		if v == nil {
			return 0
		}
		return v.Count()
	default:
		return 0
	}
}

// Blob is an object the analyzer is currently tracking.
type Blob struct {
	ID   uint64
	X, Y int // centroid in pixels
	Area int
	Age  int
}

// Analysis is the analyzer's output for a single frame.
type Analysis struct {
	State   State
	Report  Report
	Tracked []Blob
}

// Pipeline is an analyzer instance bound to fixed frame dimensions.
// It is not safe for concurrent use.
type Pipeline interface {
	// ProcessFrame analyzes one grayscale frame of the dimensions the
	// pipeline was built with.
	ProcessFrame(pix []byte) (Analysis, error)

	// Reset drops all tracking history and restarts calibration.
	Reset()

	// Close releases resources.
	Close() error
}

// Factory builds a pipeline from a configuration.
type Factory func(cfg AnalyzerConfig) (Pipeline, error)
