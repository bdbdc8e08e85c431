package surface

import (
	"sync"

	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

// Fake is a scripted in-memory surface for tests. Loads complete only when
// the test calls CompleteLoad, so load ordering is fully controlled.
type Fake struct {
	surfaceID id.SurfaceID

	mu       sync.Mutex
	closed   bool
	visible  bool
	state    ReadyState
	location string
	title    string
	favicon  string
	backs    int
	forwards int
	reloads  int
	shows    int
	hides    int
	signals  chan LoadSignal
}

// NewFake creates an idle fake surface.
func NewFake() *Fake {
	return &Fake{
		surfaceID: id.NewSurfaceID(),
		state:     ReadyStateComplete,
		signals:   make(chan LoadSignal, 32),
	}
}

func (s *Fake) ID() id.SurfaceID { return s.surfaceID }

func (s *Fake) Load(encoded string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.location = encoded
	s.state = ReadyStateLoading
	s.signals <- LoadSignal{Kind: SignalLoadStart, Location: encoded}
	return nil
}

// CompleteLoad finishes the current load with the given document metadata.
func (s *Fake) CompleteLoad(title, favicon string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.title = title
	s.favicon = favicon
	s.state = ReadyStateComplete
	s.signals <- LoadSignal{Kind: SignalLoadComplete, Location: s.location}
}

// SetDocument mutates location and metadata without emitting any signal,
// imitating same-document navigation.
func (s *Fake) SetDocument(location, title, favicon string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = location
	s.title = title
	s.favicon = favicon
	s.state = ReadyStateComplete
}

// SetState forces a ready state without signals.
func (s *Fake) SetState(state ReadyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Fake) Location() (string, error) { return s.read(&s.location) }
func (s *Fake) Title() (string, error)    { return s.read(&s.title) }
func (s *Fake) Favicon() (string, error)  { return s.read(&s.favicon) }

func (s *Fake) State() (ReadyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.state, nil
}

func (s *Fake) read(field *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return *field, nil
}

func (s *Fake) Back() error    { return s.count(&s.backs) }
func (s *Fake) Forward() error { return s.count(&s.forwards) }
func (s *Fake) Reload() error  { return s.count(&s.reloads) }

func (s *Fake) count(field *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	*field++
	return nil
}

// Backs reports how many times Back was invoked. Similar accessors cover the
// other history primitives and visibility toggles.
func (s *Fake) Backs() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.backs }
func (s *Fake) Forwards() int { s.mu.Lock(); defer s.mu.Unlock(); return s.forwards }
func (s *Fake) Reloads() int  { s.mu.Lock(); defer s.mu.Unlock(); return s.reloads }
func (s *Fake) Shows() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.shows }
func (s *Fake) Hides() int    { s.mu.Lock(); defer s.mu.Unlock(); return s.hides }

func (s *Fake) Show() {
	s.mu.Lock()
	s.visible = true
	s.shows++
	s.mu.Unlock()
}

func (s *Fake) Hide() {
	s.mu.Lock()
	s.visible = false
	s.hides++
	s.mu.Unlock()
}

func (s *Fake) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Fake) Signals() <-chan LoadSignal { return s.signals }

func (s *Fake) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.signals)
	return nil
}

// Closed reports whether Close was called.
func (s *Fake) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeFactory hands out fakes and remembers them for inspection.
type FakeFactory struct {
	mu      sync.Mutex
	Created []*Fake
}

func (f *FakeFactory) New() (Surface, error) {
	s := NewFake()
	f.mu.Lock()
	f.Created = append(f.Created, s)
	f.mu.Unlock()
	return s, nil
}
