package trigger

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.VolatileCooldown != time.Second {
		t.Errorf("VolatileCooldown = %v, want 1s", p.VolatileCooldown)
	}
	if p.DisturbedCooldown != 250*time.Millisecond {
		t.Errorf("DisturbedCooldown = %v, want 250ms", p.DisturbedCooldown)
	}
	if p.VolatileConfidence != 70 {
		t.Errorf("VolatileConfidence = %v, want 70", p.VolatileConfidence)
	}
	if !p.VolatileEnabled {
		t.Error("VolatileEnabled should default to true")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}

	if DisturbedOnlyPolicy().VolatileEnabled {
		t.Error("DisturbedOnlyPolicy should disable volatile gating")
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Policy)
		wantErr bool
	}{
		{"default", func(*Policy) {}, false},
		{"zero cooldowns", func(p *Policy) { p.VolatileCooldown, p.DisturbedCooldown = 0, 0 }, false},
		{"negative volatile cooldown", func(p *Policy) { p.VolatileCooldown = -1 }, true},
		{"negative disturbed cooldown", func(p *Policy) { p.DisturbedCooldown = -1 }, true},
		{"volatile confidence too high", func(p *Policy) { p.VolatileConfidence = 101 }, true},
		{"negative volatile confidence", func(p *Policy) { p.VolatileConfidence = -1 }, true},
		{"base confidence too high", func(p *Policy) { p.BaseConfidence = 120 }, true},
		{"negative bonus", func(p *Policy) { p.PerMomentBonus = -5 }, true},
		{"NaN bonus", func(p *Policy) { p.PerMomentBonus = float32(math.NaN()) }, true},
		{"infinite bonus", func(p *Policy) { p.PerMomentBonus = float32(math.Inf(1)) }, true},
		{"NaN base confidence", func(p *Policy) { p.BaseConfidence = float32(math.NaN()) }, true},
		{"NaN volatile confidence", func(p *Policy) { p.VolatileConfidence = float32(math.NaN()) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.modify(&p)
			err := p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("error %v does not wrap ErrInvalidPolicy", err)
			}
		})
	}
}

func TestPolicy_DisturbedConfidence(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		moments int
		want    float32
	}{
		{-3, 95},
		{0, 95},
		{1, 100},
		{2, 100},
		{3, 100},
		{1000, 100},
	}
	for _, tt := range tests {
		if got := p.DisturbedConfidence(tt.moments); got != tt.want {
			t.Errorf("DisturbedConfidence(%d) = %v, want %v", tt.moments, got, tt.want)
		}
	}

	p.BaseConfidence = 60
	p.PerMomentBonus = 10
	if got := p.DisturbedConfidence(2); got != 80 {
		t.Errorf("custom DisturbedConfidence(2) = %v, want 80", got)
	}
	if got := p.DisturbedConfidence(10); got != MaxConfidence {
		t.Errorf("custom DisturbedConfidence(10) = %v, want cap", got)
	}
}

func TestDimensionError(t *testing.T) {
	err := error(&DimensionError{WantWidth: 640, WantHeight: 480, GotWidth: 320, GotHeight: 240})

	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("DimensionError should match ErrDimensionMismatch")
	}
	if errors.Is(err, ErrInvalidFrame) {
		t.Error("DimensionError should not match ErrInvalidFrame")
	}
	want := "trigger: frame is 320x240 but pipeline was built for 640x480"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
