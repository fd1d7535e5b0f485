package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/teslashibe/go-framegate/internal/log"
	"github.com/teslashibe/go-framegate/pkg/gate"
	"github.com/teslashibe/go-framegate/pkg/scene"
)

func newTestManager(t *testing.T) (*Manager, *scene.MockFactory) {
	t.Helper()
	f := &scene.MockFactory{}
	m := NewManager(func() (*gate.Detector, error) {
		return gate.New(f.Build, gate.WithLogger(log.Discard()))
	})
	m.SetLogger(log.Discard())
	t.Cleanup(func() { m.Close() })
	return m, f
}

func TestCreate(t *testing.T) {
	m, _ := newTestManager(t)

	s, err := m.Create("cam-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID != "cam-1" || s.Detector == nil {
		t.Errorf("session = %+v", s)
	}

	if _, err := m.Create("cam-1"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate: got %v, want ErrExists", err)
	}

	anon, err := m.Create("")
	if err != nil {
		t.Fatalf("Create(\"\"): %v", err)
	}
	if _, err := uuid.Parse(anon.ID); err != nil {
		t.Errorf("generated id %q is not a uuid: %v", anon.ID, err)
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestCreate_DetectorError(t *testing.T) {
	boom := errors.New("no analyzer")
	m := NewManager(func() (*gate.Detector, error) { return nil, boom })
	m.SetLogger(log.Discard())

	if _, err := m.Create("x"); !errors.Is(err, boom) {
		t.Errorf("got %v, want wrapped detector error", err)
	}
	if m.Len() != 0 {
		t.Error("failed create must not register a session")
	}
}

func TestGetAndDelete(t *testing.T) {
	m, _ := newTestManager(t)

	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: got %v", err)
	}

	s, _ := m.Create("cam")
	got, err := m.Get("cam")
	if err != nil || got != s {
		t.Fatalf("Get: %v, %p vs %p", err, got, s)
	}

	if err := m.Delete("cam"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get("cam"); !errors.Is(err, ErrNotFound) {
		t.Error("session still present after Delete")
	}
	if err := m.Delete("cam"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete: got %v", err)
	}
}

func TestGetOrCreate(t *testing.T) {
	m, _ := newTestManager(t)

	s1, created, err := m.GetOrCreate("cam")
	if err != nil || !created {
		t.Fatalf("first GetOrCreate: created=%v err=%v", created, err)
	}
	s2, created, err := m.GetOrCreate("cam")
	if err != nil || created {
		t.Fatalf("second GetOrCreate: created=%v err=%v", created, err)
	}
	if s1 != s2 {
		t.Error("GetOrCreate returned a different session")
	}

	anon, created, err := m.GetOrCreate("")
	if err != nil || !created || anon.ID == "" {
		t.Errorf("anonymous GetOrCreate: %+v created=%v err=%v", anon, created, err)
	}
}

func TestGetOrCreate_Concurrent(t *testing.T) {
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	sessions := make([]*Session, 16)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _, err := m.GetOrCreate("shared")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i, s := range sessions {
		if s != sessions[0] {
			t.Errorf("goroutine %d got a different session", i)
		}
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestList(t *testing.T) {
	m, _ := newTestManager(t)

	for _, id := range []string{"c", "a", "b"} {
		if _, err := m.Create(id); err != nil {
			t.Fatalf("Create(%s): %v", id, err)
		}
	}

	var ids []string
	for _, info := range m.List() {
		ids = append(ids, info.ID)
		if info.Label != "calibrating" || info.FrameCount != 0 {
			t.Errorf("%s: %+v", info.ID, info)
		}
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, ids); diff != "" {
		t.Errorf("List order mismatch (-want +got):\n%s", diff)
	}
}

func TestClose(t *testing.T) {
	m, _ := newTestManager(t)
	m.Create("a")
	m.Create("b")

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after Close", m.Len())
	}
	if _, err := m.Create("c"); !errors.Is(err, ErrClosed) {
		t.Errorf("Create after Close: got %v", err)
	}
	if _, _, err := m.GetOrCreate("c"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetOrCreate after Close: got %v", err)
	}
}
