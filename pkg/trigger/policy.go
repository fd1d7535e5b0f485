package trigger

import (
	"fmt"
	"math"
	"time"
)

// Default gating constants.
const (
	DefaultVolatileCooldown   = 1 * time.Second
	DefaultDisturbedCooldown  = 250 * time.Millisecond
	DefaultVolatileConfidence = 70
	DefaultBaseConfidence     = 95
	DefaultPerMomentBonus     = 5

	// MaxConfidence caps every reported confidence.
	MaxConfidence = 100
)

// Policy holds the tunable gating parameters. Cooldowns are tracked per
// scene state; firing in one state never touches the other's timer.
type Policy struct {
	// VolatileCooldown is the minimum time between two Volatile fires.
	VolatileCooldown time.Duration `yaml:"volatile_cooldown" json:"volatile_cooldown"`

	// DisturbedCooldown is the minimum time between two Disturbed fires.
	// Shorter than VolatileCooldown since Disturbed is the urgent state.
	DisturbedCooldown time.Duration `yaml:"disturbed_cooldown" json:"disturbed_cooldown"`

	// VolatileConfidence is the fixed confidence of a Volatile fire.
	VolatileConfidence float32 `yaml:"volatile_confidence" json:"volatile_confidence"`

	// BaseConfidence and PerMomentBonus make up a Disturbed fire's
	// confidence: min(100, base + moments*bonus).
	BaseConfidence float32 `yaml:"base_confidence" json:"base_confidence"`
	PerMomentBonus float32 `yaml:"per_moment_bonus" json:"per_moment_bonus"`

	// VolatileEnabled turns Volatile gating on. When false Volatile frames
	// are treated like Stable ones.
	VolatileEnabled bool `yaml:"volatile_enabled" json:"volatile_enabled"`
}

// DefaultPolicy returns the stock gating policy.
func DefaultPolicy() Policy {
	return Policy{
		VolatileCooldown:   DefaultVolatileCooldown,
		DisturbedCooldown:  DefaultDisturbedCooldown,
		VolatileConfidence: DefaultVolatileConfidence,
		BaseConfidence:     DefaultBaseConfidence,
		PerMomentBonus:     DefaultPerMomentBonus,
		VolatileEnabled:    true,
	}
}

// DisturbedOnlyPolicy returns the stock policy with Volatile gating off.
func DisturbedOnlyPolicy() Policy {
	p := DefaultPolicy()
	p.VolatileEnabled = false
	return p
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	switch {
	case p.VolatileCooldown < 0:
		return fmt.Errorf("%w: negative volatile cooldown %v", ErrInvalidPolicy, p.VolatileCooldown)
	case p.DisturbedCooldown < 0:
		return fmt.Errorf("%w: negative disturbed cooldown %v", ErrInvalidPolicy, p.DisturbedCooldown)
	case !inConfidenceRange(p.VolatileConfidence):
		return fmt.Errorf("%w: volatile confidence %v outside [0,100]", ErrInvalidPolicy, p.VolatileConfidence)
	case !inConfidenceRange(p.BaseConfidence):
		return fmt.Errorf("%w: base confidence %v outside [0,100]", ErrInvalidPolicy, p.BaseConfidence)
	case !(p.PerMomentBonus >= 0) || math.IsInf(float64(p.PerMomentBonus), 1):
		return fmt.Errorf("%w: per-moment bonus %v must be finite and non-negative", ErrInvalidPolicy, p.PerMomentBonus)
	}
	return nil
}

// DisturbedConfidence returns the confidence of a Disturbed fire with the
// given number of significant moments. Non-decreasing in moments, capped.
func (p Policy) DisturbedConfidence(moments int) float32 {
	if moments < 0 {
		moments = 0
	}
	c := p.BaseConfidence + float32(moments)*p.PerMomentBonus
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

func inConfidenceRange(c float32) bool {
	return c >= 0 && c <= MaxConfidence
}
