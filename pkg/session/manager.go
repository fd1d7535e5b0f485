// Package session keeps one gate.Detector per camera stream.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/gate"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session: not found")

	// ErrExists is returned when creating a session whose id is taken.
	ErrExists = errors.New("session: already exists")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: manager closed")
)

// NewDetectorFunc builds the detector for a new session.
type NewDetectorFunc func() (*gate.Detector, error)

// Session is a named detector.
type Session struct {
	ID       string
	Detector *gate.Detector
	Created  time.Time
}

// Info summarizes a session for listing.
type Info struct {
	ID         string    `json:"id"`
	Created    time.Time `json:"created"`
	FrameCount uint64    `json:"frame_count"`
	Fires      uint64    `json:"fires"`
	Label      string    `json:"label"`
}

// Manager is a concurrency-safe registry of sessions.
type Manager struct {
	newDetector NewDetectorFunc
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager that builds detectors with fn.
func NewManager(fn NewDetectorFunc) *Manager {
	return &Manager{
		newDetector: fn,
		logger:      log.Component("session"),
		sessions:    make(map[string]*Session),
	}
}

// SetLogger replaces the manager's logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	m.logger = l
	m.mu.Unlock()
}

// Create registers a new session. An empty id gets a random UUID.
func (m *Manager) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}
	return m.createLocked(id)
}

func (m *Manager) createLocked(id string) (*Session, error) {
	d, err := m.newDetector()
	if err != nil {
		return nil, fmt.Errorf("session: create detector: %w", err)
	}
	s := &Session{ID: id, Detector: d, Created: time.Now()}
	m.sessions[id] = s
	m.logger.Info("session created", "id", id, "total", len(m.sessions))
	return s, nil
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// GetOrCreate returns the session with id, creating it if needed.
// The bool reports whether it was created.
func (m *Manager) GetOrCreate(id string) (*Session, bool, error) {
	if id != "" {
		if s, err := m.Get(id); err == nil {
			return s, false, nil
		}
	} else {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrClosed
	}
	if s, ok := m.sessions[id]; ok {
		return s, false, nil
	}
	s, err := m.createLocked(id)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Delete closes and removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.logger.Info("session deleted", "id", id, "total", remaining)
	return s.Detector.Close()
}

// List returns every session sorted by id.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		st := s.Detector.Stats()
		infos = append(infos, Info{
			ID:         s.ID,
			Created:    s.Created,
			FrameCount: st.Frames,
			Fires:      st.Fires,
			Label:      s.Detector.AnalysisInfo().Label,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Len returns the number of sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close closes every detector. The manager rejects new sessions afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := s.Detector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
