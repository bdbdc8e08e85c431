package surface

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/rewrite"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

// Fetching renders documents by proxying them over HTTP. Load decodes the
// proxied destination, fetches the origin document in the background, and
// reports progress through the signal channel. A failed fetch still completes
// the load with an error document title; the surface never wedges in a
// loading state on its own.
type Fetching struct {
	surfaceID id.SurfaceID
	codec     rewrite.Codec
	fetcher   *Fetcher
	logger    *logging.Logger
	timeout   time.Duration

	mu       sync.Mutex
	closed   bool
	visible  bool
	state    ReadyState
	location string
	title    string
	favicon  string
	history  []string
	histIdx  int
	loadSeq  int
	signals  chan LoadSignal
}

// NewFetching creates an unbound fetching surface.
func NewFetching(codec rewrite.Codec, fetcher *Fetcher, logger *logging.Logger, timeout time.Duration) *Fetching {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetching{
		surfaceID: id.NewSurfaceID(),
		codec:     codec,
		fetcher:   fetcher,
		logger:    logger,
		timeout:   timeout,
		state:     ReadyStateComplete,
		histIdx:   -1,
		signals:   make(chan LoadSignal, 16),
	}
}

func (s *Fetching) ID() id.SurfaceID { return s.surfaceID }

// Load navigates to an encoded destination, pushing it onto the history
// stack and dropping any forward entries.
func (s *Fetching) Load(encoded string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.history = append(s.history[:s.histIdx+1], encoded)
	s.histIdx = len(s.history) - 1
	s.startLoadLocked(encoded)
	return nil
}

// startLoadLocked begins a load of an encoded destination. Caller holds mu.
func (s *Fetching) startLoadLocked(encoded string) {
	s.loadSeq++
	seq := s.loadSeq
	s.state = ReadyStateLoading
	s.location = encoded
	s.signalLocked(LoadSignal{Kind: SignalLoadStart, Location: encoded})

	go s.fetch(seq, encoded)
}

func (s *Fetching) fetch(seq int, encoded string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	decoded := s.codec.Decode(encoded)
	doc, err := s.fetcher.Fetch(ctx, decoded)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A newer load or a teardown won; this result is stale.
	if s.closed || seq != s.loadSeq {
		return
	}

	if err != nil {
		s.logger.Debug("surface fetch failed",
			zap.String("surface_id", s.surfaceID.String()),
			zap.String("url", decoded),
			zap.Error(err),
		)
		s.title = "Problem loading page"
		s.favicon = ""
	} else {
		s.title = doc.Title
		s.favicon = doc.Favicon
	}
	s.state = ReadyStateComplete
	s.signalLocked(LoadSignal{Kind: SignalLoadComplete, Location: s.location})
}

func (s *Fetching) Location() (string, error) { return s.read(&s.location) }
func (s *Fetching) Title() (string, error)    { return s.read(&s.title) }
func (s *Fetching) Favicon() (string, error)  { return s.read(&s.favicon) }

func (s *Fetching) State() (ReadyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.state, nil
}

func (s *Fetching) read(field *string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	return *field, nil
}

// Back loads the previous history entry. No-op at the start of history.
func (s *Fetching) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.histIdx <= 0 {
		return nil
	}
	s.histIdx--
	s.startLoadLocked(s.history[s.histIdx])
	return nil
}

// Forward loads the next history entry. No-op at the end of history.
func (s *Fetching) Forward() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.histIdx < 0 || s.histIdx >= len(s.history)-1 {
		return nil
	}
	s.histIdx++
	s.startLoadLocked(s.history[s.histIdx])
	return nil
}

// Reload re-fetches the current entry. No-op before the first load.
func (s *Fetching) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.histIdx < 0 {
		return nil
	}
	s.startLoadLocked(s.history[s.histIdx])
	return nil
}

func (s *Fetching) Show() {
	s.mu.Lock()
	s.visible = true
	s.mu.Unlock()
}

func (s *Fetching) Hide() {
	s.mu.Lock()
	s.visible = false
	s.mu.Unlock()
}

func (s *Fetching) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *Fetching) Signals() <-chan LoadSignal { return s.signals }

// Close destroys the surface. In-flight fetches become stale and are
// discarded; the signal channel is closed.
func (s *Fetching) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.loadSeq++
	close(s.signals)
	return nil
}

// signalLocked delivers a signal without blocking; a full channel drops the
// signal (the polling fallback recovers the state). Caller holds mu.
func (s *Fetching) signalLocked(sig LoadSignal) {
	select {
	case s.signals <- sig:
	default:
	}
}

// FetchFactory builds fetching surfaces for the session manager.
type FetchFactory struct {
	Codec   rewrite.Codec
	Fetcher *Fetcher
	Logger  *logging.Logger
	Timeout time.Duration
}

// New creates a fresh surface.
func (f *FetchFactory) New() (Surface, error) {
	return NewFetching(f.Codec, f.Fetcher, f.Logger, f.Timeout), nil
}
