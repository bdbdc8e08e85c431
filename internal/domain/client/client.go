// Package client implements the per-session controller: it wires the rewrite
// codec, transport tunnel, and background worker together, drives navigation
// through the bound display surface, and observes that surface for metadata
// changes it reports upstream as events.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spyglassproxy/spyglass/internal/domain/events"
	"github.com/spyglassproxy/spyglass/internal/domain/surface"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/rewrite"
	"github.com/spyglassproxy/spyglass/internal/search"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
	"github.com/spyglassproxy/spyglass/internal/transport"
	"github.com/spyglassproxy/spyglass/internal/worker"
)

// Collaborators are the dependency services a client needs before it can
// navigate. All three must be present; a missing one means the host
// environment cannot run proxied sessions at all.
type Collaborators struct {
	Codec     rewrite.Codec
	Transport transport.Configurator
	Worker    worker.Registrar

	TransportEndpoint string
	DialTarget        string
	WorkerScript      string
	WorkerScope       string
	WorkerType        string
}

// Options tune a single client.
type Options struct {
	// Engine is the search engine used when navigation input is not a URL.
	Engine search.Engine
	// PollInterval is the observation fallback cadence. Zero means 500ms.
	PollInterval time.Duration
}

// State is a point-in-time snapshot of a client, safe to serialize.
type State struct {
	Initialized      bool   `json:"initialized"`
	Ready            bool   `json:"ready"`
	Loading          bool   `json:"loading"`
	Engine           string `json:"engine"`
	SearchEngine     string `json:"search_engine"`
	LastKnownURL     string `json:"last_known_url"`
	LastKnownTitle   string `json:"last_known_title"`
	LastKnownFavicon string `json:"last_known_favicon"`
	Error            string `json:"error,omitempty"`
}

// Client controls one proxied browsing session.
type Client struct {
	sessionID id.SessionID
	collab    Collaborators
	logger    *logging.Logger
	emitter   *events.Emitter
	poll      time.Duration

	mu           sync.Mutex
	initialized  bool
	initErr      error
	ready        bool
	loading      bool
	searchEngine search.Engine
	lastURL      string
	lastTitle    string
	lastFavicon  string
	failure      error

	surf      surface.Surface
	obsCancel context.CancelFunc
	obsDone   chan struct{}
}

// New creates an uninitialized client for a session.
func New(sessionID id.SessionID, collab Collaborators, opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return &Client{
		sessionID:    sessionID,
		collab:       collab,
		logger:       logger,
		emitter:      events.NewEmitter(),
		poll:         poll,
		searchEngine: opts.Engine,
	}
}

// SessionID returns the owning session's id.
func (c *Client) SessionID() id.SessionID { return c.sessionID }

// Subscribe registers an event handler and returns a cancel function.
func (c *Client) Subscribe(h events.Handler) func() {
	return c.emitter.Subscribe(h)
}

// Initialize wires the client's dependency services. It is idempotent: repeat
// calls return the outcome of the first attempt without re-running setup. A
// failure is terminal for this client and emitted exactly once as an error
// event.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		err := c.initErr
		c.mu.Unlock()
		return err
	}
	c.initialized = true
	c.mu.Unlock()

	step, err := c.setup(ctx)

	c.mu.Lock()
	c.initErr = err
	if err != nil {
		c.failure = err
	} else {
		c.ready = true
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("session setup failed",
			zap.String("session_id", string(c.sessionID)),
			zap.String("step", step),
			zap.Error(err))
		c.emit(events.KindError, events.ErrorInfo{Message: err.Error(), Step: step})
		return err
	}

	c.logger.Info("session ready", zap.String("session_id", string(c.sessionID)))
	c.emit(events.KindReady, nil)
	return nil
}

// setup runs the dependency pipeline and reports which step failed.
func (c *Client) setup(ctx context.Context) (string, error) {
	if c.collab.Codec == nil || c.collab.Transport == nil || c.collab.Worker == nil {
		return "environment", ErrUnsupportedEnvironment
	}

	opts := worker.RegistrationOptions{Scope: c.collab.WorkerScope, Type: c.collab.WorkerType}
	if err := c.collab.Worker.Register(ctx, c.collab.WorkerScript, opts); err != nil {
		return "worker-register", &DependencyError{Step: "worker-register", Err: err}
	}
	if err := c.collab.Worker.WaitReady(ctx); err != nil {
		return "worker-ready", &DependencyError{Step: "worker-ready", Err: err}
	}
	// Encoded destinations must land inside the worker's registered scope or
	// requests would bypass interception entirely.
	if sample := c.collab.Codec.Encode("https://example.com/"); !c.collab.Worker.Controls(sample) {
		return "worker-scope", &DependencyError{
			Step: "worker-scope",
			Err:  fmt.Errorf("worker scope %q does not cover encoded destinations", c.collab.WorkerScope),
		}
	}

	var dial []transport.DialOption
	if c.collab.DialTarget != "" {
		dial = append(dial, transport.DialOption{DialTarget: c.collab.DialTarget})
	}
	if err := c.collab.Transport.SetTransport(ctx, c.collab.TransportEndpoint, dial); err != nil {
		return "transport", &DependencyError{Step: "transport", Err: err}
	}

	return "", nil
}

// SetSurface binds a display surface and starts observing it. Any previously
// bound surface's observation loop is stopped first and fully drained before
// the new one starts.
func (c *Client) SetSurface(s surface.Surface) error {
	if s == nil {
		return ErrInvalidSurface
	}
	if _, err := s.State(); err != nil {
		return ErrInvalidSurface
	}

	c.stopObservation()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.surf = s
	c.obsCancel = cancel
	c.obsDone = done
	c.mu.Unlock()

	go c.observe(ctx, s, done)
	return nil
}

// Surface returns the currently bound surface, nil if none.
func (c *Client) Surface() surface.Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surf
}

// Navigate resolves the input, encodes the destination, and instructs the
// bound surface to load it. The encoded destination is returned so callers
// can correlate later location reads. Before the client is ready this is a
// hard error and loading state is untouched.
func (c *Client) Navigate(input string) (string, error) {
	c.mu.Lock()
	if !c.ready {
		c.mu.Unlock()
		return "", ErrNotReady
	}
	dest, resolution := Resolve(input, c.searchEngine)
	encoded := c.collab.Codec.Encode(dest)
	surf := c.surf
	c.loading = true
	c.mu.Unlock()

	c.logger.Debug("navigating",
		zap.String("session_id", string(c.sessionID)),
		zap.String("resolution", string(resolution)),
		zap.String("destination", dest))

	c.emit(events.KindLoadingStart, nil)
	c.emit(events.KindNavigating, events.Navigation{Original: dest, Encoded: encoded})

	if surf != nil {
		if err := surf.Load(encoded); err != nil {
			c.logger.Warn("surface rejected load",
				zap.String("session_id", string(c.sessionID)),
				zap.Error(err))
		}
	}
	return encoded, nil
}

// Decode translates an observed surface location back into its real
// destination. Before the client is ready the input is returned unchanged.
func (c *Client) Decode(location string) string {
	c.mu.Lock()
	ready := c.ready
	codec := c.collab.Codec
	c.mu.Unlock()

	if !ready || codec == nil {
		return location
	}
	return codec.Decode(location)
}

// Back steps the bound surface's history backwards. Without a surface, or at
// a history boundary, this is a no-op.
func (c *Client) Back() { c.history(surface.Surface.Back) }

// Forward steps the bound surface's history forwards.
func (c *Client) Forward() { c.history(surface.Surface.Forward) }

// Reload re-requests the bound surface's current document.
func (c *Client) Reload() { c.history(surface.Surface.Reload) }

func (c *Client) history(op func(surface.Surface) error) {
	c.mu.Lock()
	surf := c.surf
	c.mu.Unlock()
	if surf == nil {
		return
	}
	if err := op(surf); err != nil {
		c.logger.Debug("history operation skipped",
			zap.String("session_id", string(c.sessionID)),
			zap.Error(err))
	}
}

// SetSearchEngine swaps the engine used for non-URL navigation input.
func (c *Client) SetSearchEngine(e search.Engine) {
	c.mu.Lock()
	c.searchEngine = e
	c.mu.Unlock()
}

// Snapshot returns the current client state.
func (c *Client) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Initialized:      c.initialized,
		Ready:            c.ready,
		Loading:          c.loading,
		Engine:           c.searchEngine.Name,
		SearchEngine:     c.searchEngine.ID,
		LastKnownURL:     c.lastURL,
		LastKnownTitle:   c.lastTitle,
		LastKnownFavicon: c.lastFavicon,
	}
	if c.failure != nil {
		st.Error = c.failure.Error()
	}
	return st
}

// Close stops the observation loop. The surface itself is owned and closed by
// the session manager.
func (c *Client) Close() {
	c.stopObservation()

	c.mu.Lock()
	c.surf = nil
	c.ready = false
	c.mu.Unlock()
}

// stopObservation cancels the running loop and waits for it to drain, so no
// stale observation can fire after a surface swap or close.
func (c *Client) stopObservation() {
	c.mu.Lock()
	cancel := c.obsCancel
	done := c.obsDone
	c.obsCancel = nil
	c.obsDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Client) emit(k events.Kind, payload interface{}) {
	c.emitter.Emit(events.New(k, string(c.sessionID), payload))
}
