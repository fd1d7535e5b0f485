package scene

import (
	"sync"
)

// Mock implements Pipeline for testing.
// Analyses are taken from ProcessFunc when set, otherwise from the queue
// filled by Push; an empty queue yields Stable with no report.
type Mock struct {
	// ProcessFunc is called when ProcessFrame is invoked.
	ProcessFunc func(pix []byte) (Analysis, error)

	// CloseFunc is called when Close is invoked.
	// If nil, returns nil.
	CloseFunc func() error

	// Config is the configuration the mock was built with.
	Config AnalyzerConfig

	mu     sync.Mutex
	queue  []Analysis
	frames int
	resets int
	closed bool
}

// NewMock creates a mock pipeline bound to cfg.
func NewMock(cfg AnalyzerConfig) *Mock {
	return &Mock{Config: cfg}
}

// Push queues analyses returned by subsequent ProcessFrame calls.
func (m *Mock) Push(analyses ...Analysis) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, analyses...)
}

// PushState queues a bare analysis with the given state.
func (m *Mock) PushState(states ...State) {
	for _, s := range states {
		m.Push(Analysis{State: s, Report: NoReport{}})
	}
}

// ProcessFrame implements Pipeline.
func (m *Mock) ProcessFrame(pix []byte) (Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Config.Pixels() > 0 && len(pix) != m.Config.Pixels() {
		return Analysis{}, ErrFrameSize
	}
	m.frames++

	if m.ProcessFunc != nil {
		return m.ProcessFunc(pix)
	}
	if len(m.queue) == 0 {
		return Analysis{State: Stable, Report: NoReport{}}, nil
	}
	a := m.queue[0]
	m.queue = m.queue[1:]
	return a, nil
}

// Reset implements Pipeline.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.queue = nil
}

// Close implements Pipeline.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	fn := m.CloseFunc
	m.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// Frames returns how many frames were processed.
func (m *Mock) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

// Resets returns how many times Reset was called.
func (m *Mock) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockFactory records every pipeline it builds so tests can script them.
type MockFactory struct {
	// Err, when set, is returned instead of building a pipeline.
	Err error

	// Setup is applied to each new mock before it is returned.
	Setup func(*Mock)

	mu    sync.Mutex
	built []*Mock
}

// Build implements Factory.
func (f *MockFactory) Build(cfg AnalyzerConfig) (Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	m := NewMock(cfg)
	if f.Setup != nil {
		f.Setup(m)
	}
	f.built = append(f.built, m)
	return m, nil
}

// Built returns every pipeline built so far, oldest first.
func (f *MockFactory) Built() []*Mock {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Mock, len(f.built))
	copy(out, f.built)
	return out
}

// Last returns the most recently built pipeline, or nil.
func (f *MockFactory) Last() *Mock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}
