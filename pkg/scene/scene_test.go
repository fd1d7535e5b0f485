package scene

import (
	"errors"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Calibrating, "calibrating"},
		{Stable, "stable"},
		{Volatile, "volatile"},
		{Disturbed, "disturbed"},
		{State(42), "state(42)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []State{Calibrating, Stable, Volatile, Disturbed} {
		got, err := ParseState(s.String())
		if err != nil {
			t.Fatalf("ParseState(%q) error: %v", s, err)
		}
		if got != s {
			t.Errorf("ParseState(%q) = %v", s, got)
		}
	}

	if got, err := ParseState("DISTURBED"); err != nil || got != Disturbed {
		t.Errorf("ParseState should be case-insensitive, got %v, %v", got, err)
	}
	if _, err := ParseState("chaotic"); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestMomentCount(t *testing.T) {
	moments := SignificantMoments{
		New:       []Moment{{ObjectID: 1}, {ObjectID: 2}},
		Completed: []Moment{{ObjectID: 3}},
	}

	tests := []struct {
		name   string
		report Report
		want   int
	}{
		{"nil report", nil, 0},
		{"no report", NoReport{}, 0},
		{"value moments", moments, 3},
		{"pointer moments", &moments, 3},
		{"nil pointer moments", (*SignificantMoments)(nil), 0},
		{"empty moments", SignificantMoments{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MomentCount(tt.report); got != tt.want {
				t.Errorf("MomentCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAnalyzerConfig_Validate(t *testing.T) {
	valid := DefaultAnalyzerConfig().WithDimensions(640, 480)
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config with dimensions should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*AnalyzerConfig)
	}{
		{"zero width", func(c *AnalyzerConfig) { c.Width = 0 }},
		{"negative height", func(c *AnalyzerConfig) { c.Height = -1 }},
		{"zero chunk", func(c *AnalyzerConfig) { c.ChunkSize = 0 }},
		{"threshold above one", func(c *AnalyzerConfig) { c.AnomalyThreshold = 1.5 }},
		{"negative threshold", func(c *AnalyzerConfig) { c.AnomalyThreshold = -0.1 }},
		{"exit above entry", func(c *AnalyzerConfig) { c.DisturbanceExit = c.DisturbanceEntry + 0.1 }},
		{"no confirmation", func(c *AnalyzerConfig) { c.ConfirmationFrames = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDefaultAnalyzerConfig_NoDimensions(t *testing.T) {
	cfg := DefaultAnalyzerConfig()
	if cfg.Width != 0 || cfg.Height != 0 {
		t.Errorf("defaults should leave dimensions unset, got %dx%d", cfg.Width, cfg.Height)
	}
	// Dimensions come from the first frame, so bare defaults never validate
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error without dimensions")
	}
}

func TestMock_Queue(t *testing.T) {
	m := NewMock(DefaultAnalyzerConfig().WithDimensions(4, 2))
	m.PushState(Volatile, Disturbed)

	pix := make([]byte, 8)
	for _, want := range []State{Volatile, Disturbed, Stable} {
		a, err := m.ProcessFrame(pix)
		if err != nil {
			t.Fatalf("ProcessFrame error: %v", err)
		}
		if a.State != want {
			t.Errorf("got state %v, want %v", a.State, want)
		}
	}
	if m.Frames() != 3 {
		t.Errorf("Frames() = %d, want 3", m.Frames())
	}
}

func TestMock_FrameSize(t *testing.T) {
	m := NewMock(DefaultAnalyzerConfig().WithDimensions(4, 2))
	if _, err := m.ProcessFrame(make([]byte, 7)); !errors.Is(err, ErrFrameSize) {
		t.Errorf("expected ErrFrameSize, got %v", err)
	}
	if m.Frames() != 0 {
		t.Error("rejected frame should not be counted")
	}
}

func TestMock_ResetAndClose(t *testing.T) {
	m := NewMock(AnalyzerConfig{})
	m.PushState(Disturbed)
	m.Reset()

	a, _ := m.ProcessFrame(nil)
	if a.State != Stable {
		t.Errorf("Reset should drop queued analyses, got %v", a.State)
	}
	if m.Resets() != 1 {
		t.Errorf("Resets() = %d, want 1", m.Resets())
	}

	closeErr := errors.New("close failed")
	m.CloseFunc = func() error { return closeErr }
	if err := m.Close(); !errors.Is(err, closeErr) {
		t.Errorf("Close() = %v, want %v", err, closeErr)
	}
	if !m.Closed() {
		t.Error("Closed() should be true")
	}
}

func TestMockFactory(t *testing.T) {
	f := &MockFactory{Setup: func(m *Mock) { m.PushState(Volatile) }}

	if f.Last() != nil {
		t.Error("Last() should be nil before any build")
	}

	p, err := f.Build(DefaultAnalyzerConfig().WithDimensions(2, 2))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	a, _ := p.ProcessFrame(make([]byte, 4))
	if a.State != Volatile {
		t.Errorf("Setup not applied, got %v", a.State)
	}
	if len(f.Built()) != 1 || f.Last().Config.Width != 2 {
		t.Error("factory should record built pipeline and its config")
	}

	f.Err = errors.New("no analyzer")
	if _, err := f.Build(AnalyzerConfig{}); err == nil {
		t.Error("expected factory error")
	}
}
