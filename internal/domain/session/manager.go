package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spyglassproxy/spyglass/internal/domain/client"
	"github.com/spyglassproxy/spyglass/internal/domain/events"
	"github.com/spyglassproxy/spyglass/internal/domain/surface"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/monitoring"
	"github.com/spyglassproxy/spyglass/internal/prefs"
	"github.com/spyglassproxy/spyglass/internal/search"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

var (
	// ErrNotFound is returned for operations on unknown session ids.
	ErrNotFound = errors.New("session not found")

	// ErrUnknownEngine is returned when a search engine id is not in the
	// catalog.
	ErrUnknownEngine = errors.New("unknown search engine")
)

// Config assembles a Manager's dependencies.
type Config struct {
	Factory       surface.Factory
	Collaborators client.Collaborators
	Registry      *search.Registry
	Prefs         prefs.Store
	// DefaultEngine is the engine id used when the preference store has no
	// stored selection. Unknown or empty ids fall back to the catalog default.
	DefaultEngine string
	PollInterval  time.Duration
	Logger        *logging.Logger
	Metrics       *monitoring.Metrics
}

// Manager owns the session collection. At most one session is active; its
// surface is the visible one, and active-only notifications from any other
// session are suppressed.
type Manager struct {
	factory  surface.Factory
	collab   client.Collaborators
	registry *search.Registry
	prefs    prefs.Store
	poll     time.Duration
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	emitter  *events.Emitter

	mu       sync.Mutex
	order    []id.SessionID
	sessions map[id.SessionID]*managed
	activeID id.SessionID
	engine   search.Engine
}

// NewManager creates an empty manager. The current search engine is restored
// from the preference store, then the configured default, then the catalog
// default.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	engineID := cfg.Prefs.Engine()
	if engineID == "" {
		engineID = cfg.DefaultEngine
	}
	return &Manager{
		factory:  cfg.Factory,
		collab:   cfg.Collaborators,
		registry: cfg.Registry,
		prefs:    cfg.Prefs,
		poll:     cfg.PollInterval,
		logger:   logger,
		metrics:  cfg.Metrics,
		emitter:  events.NewEmitter(),
		sessions: make(map[id.SessionID]*managed),
		engine:   cfg.Registry.GetOrDefault(engineID),
	}
}

// Subscribe registers a handler on the merged, filtered event stream.
func (m *Manager) Subscribe(h events.Handler) func() {
	return m.emitter.Subscribe(h)
}

// Create opens a new session. The very first session becomes active; every
// later one starts in the background and does not steal focus. Client setup
// and the optional initial navigation run asynchronously so creation stays
// fast even when dependency services are slow.
func (m *Manager) Create(initialURL string) (Info, error) {
	surf, err := m.factory.New()
	if err != nil {
		return Info{}, fmt.Errorf("failed to create display surface: %w", err)
	}

	sid := id.NewSessionID()

	m.mu.Lock()
	engine := m.engine
	m.mu.Unlock()

	c := client.New(sid, m.collab, client.Options{
		Engine:       engine,
		PollInterval: m.poll,
	}, m.logger)

	sess := &managed{
		id:        sid,
		client:    c,
		surf:      surf,
		title:     DefaultTitle,
		createdAt: time.Now(),
	}
	sess.unsubscribe = c.Subscribe(m.forward)

	m.mu.Lock()
	m.order = append(m.order, sid)
	m.sessions[sid] = sess
	first := len(m.sessions) == 1
	if first {
		m.activeID = sid
	}
	activeID := m.activeID
	info := sess.info(activeID)
	count := len(m.sessions)
	m.mu.Unlock()

	if first {
		surf.Show()
	}

	if m.metrics != nil {
		m.metrics.IncSessionsTotal()
		m.metrics.SetSessionsActive(count)
	}
	m.logger.Info("session created",
		zap.String("session_id", string(sid)),
		zap.Bool("active", first))

	m.emitter.Emit(events.New(events.KindCreated, string(sid), info))
	if first {
		m.emitter.Emit(events.New(events.KindChanged, string(sid), info))
	}

	go m.bootstrap(sess, surf, initialURL)

	return info, nil
}

// bootstrap runs the session's dependency setup off the caller's goroutine.
func (m *Manager) bootstrap(sess *managed, surf surface.Surface, initialURL string) {
	if err := sess.client.SetSurface(surf); err != nil {
		m.logger.Error("failed to bind surface",
			zap.String("session_id", string(sess.id)),
			zap.Error(err))
		return
	}
	if err := sess.client.Initialize(context.Background()); err != nil {
		// The client already emitted the error event.
		return
	}
	if initialURL != "" {
		if _, err := sess.client.Navigate(initialURL); err != nil {
			m.logger.Warn("initial navigation failed",
				zap.String("session_id", string(sess.id)),
				zap.Error(err))
		}
	}
}

// Switch makes a session active. Switching to the already active session
// still announces the change so listeners can re-sync, but skips the
// hide/show cycle so repeated clicks cause no visibility flicker. The loading
// indicator is re-synthesized from the new session's state because its
// loading events may have been suppressed while it was backgrounded.
func (m *Manager) Switch(sid id.SessionID) error {
	m.mu.Lock()
	next, ok := m.sessions[sid]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if m.activeID == sid {
		info := next.info(sid)
		m.mu.Unlock()
		m.emitter.Emit(events.New(events.KindChanged, string(sid), info))
		return nil
	}
	prev := m.sessions[m.activeID]
	m.activeID = sid
	info := next.info(sid)
	m.mu.Unlock()

	if prev != nil {
		prev.surf.Hide()
	}
	next.surf.Show()

	if m.metrics != nil {
		m.metrics.IncSessionSwitches()
	}
	m.logger.Debug("session switched", zap.String("session_id", string(sid)))

	m.emitter.Emit(events.New(events.KindChanged, string(sid), info))
	m.emitter.Emit(events.New(events.KindStatusChange, string(sid), info.State))
	loadingKind := events.KindLoadingStop
	if info.State.Loading {
		loadingKind = events.KindLoadingStart
	}
	m.emitter.Emit(events.New(loadingKind, string(sid), nil))
	return nil
}

// Close destroys a session. Its observation loop is stopped before the
// surface handle is invalidated so no stale reads race the teardown. Closing
// the active session refocuses the earliest remaining session by insertion
// order; closing the last session leaves nothing active.
func (m *Manager) Close(sid id.SessionID) error {
	m.mu.Lock()
	sess, ok := m.sessions[sid]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, sid)
	for i, existing := range m.order {
		if existing == sid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	wasActive := m.activeID == sid
	var next *managed
	if wasActive {
		m.activeID = ""
		if len(m.order) > 0 {
			m.activeID = m.order[0]
			next = m.sessions[m.activeID]
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	sess.unsubscribe()
	sess.client.Close()
	if err := sess.surf.Close(); err != nil {
		m.logger.Warn("surface close failed",
			zap.String("session_id", string(sid)),
			zap.Error(err))
	}

	if m.metrics != nil {
		m.metrics.SetSessionsActive(count)
	}
	m.logger.Info("session closed", zap.String("session_id", string(sid)))

	m.emitter.Emit(events.New(events.KindClosed, string(sid), Closed{ID: string(sid)}))

	if next != nil {
		next.surf.Show()
		m.mu.Lock()
		info := next.info(m.activeID)
		m.mu.Unlock()
		m.emitter.Emit(events.New(events.KindChanged, info.ID, info))
		m.emitter.Emit(events.New(events.KindStatusChange, info.ID, info.State))
	} else if wasActive {
		m.emitter.Emit(events.New(events.KindChanged, "", nil))
	}
	return nil
}

// Navigate routes address bar input to a session's client. An empty id
// targets the active session; without one the call is a benign no-op.
func (m *Manager) Navigate(sid id.SessionID, input string) (string, error) {
	sess, err := m.resolve(sid)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}

	encoded, err := sess.client.Navigate(input)
	if err != nil {
		return "", err
	}

	if m.metrics != nil {
		m.mu.Lock()
		engine := m.engine
		m.mu.Unlock()
		_, resolution := client.Resolve(input, engine)
		m.metrics.RecordNavigation(string(resolution))
	}
	return encoded, nil
}

// Back steps a session's history backwards. An empty id targets the active
// session; without one the call is a benign no-op.
func (m *Manager) Back(sid id.SessionID) error {
	sess, err := m.resolve(sid)
	if err != nil || sess == nil {
		return err
	}
	sess.client.Back()
	return nil
}

// Forward steps a session's history forwards.
func (m *Manager) Forward(sid id.SessionID) error {
	sess, err := m.resolve(sid)
	if err != nil || sess == nil {
		return err
	}
	sess.client.Forward()
	return nil
}

// Reload re-requests a session's current document.
func (m *Manager) Reload(sid id.SessionID) error {
	sess, err := m.resolve(sid)
	if err != nil || sess == nil {
		return err
	}
	sess.client.Reload()
	return nil
}

// SetSearchEngine validates an engine id against the catalog, persists the
// preference, and propagates the engine to every live session.
func (m *Manager) SetSearchEngine(engineID string) error {
	engine, ok := m.registry.Get(engineID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEngine, engineID)
	}
	if err := m.prefs.SetEngine(engineID); err != nil {
		return fmt.Errorf("failed to persist search engine: %w", err)
	}

	m.mu.Lock()
	m.engine = engine
	clients := make([]*client.Client, 0, len(m.sessions))
	for _, sess := range m.sessions {
		clients = append(clients, sess.client)
	}
	m.mu.Unlock()

	for _, c := range clients {
		c.SetSearchEngine(engine)
	}

	m.logger.Info("search engine changed", zap.String("engine", engineID))
	return nil
}

// SearchEngine returns the currently selected engine.
func (m *Manager) SearchEngine() search.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

// Get returns the snapshot of one session.
func (m *Manager) Get(sid id.SessionID) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sid]
	if !ok {
		return Info{}, ErrNotFound
	}
	return sess.info(m.activeID), nil
}

// List returns all sessions in creation order.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.order))
	for _, sid := range m.order {
		out = append(out, m.sessions[sid].info(m.activeID))
	}
	return out
}

// Active returns the active session's snapshot, if any.
func (m *Manager) Active() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[m.activeID]
	if !ok {
		return Info{}, false
	}
	return sess.info(m.activeID), true
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stats returns collection statistics for health reporting.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	loading := 0
	for _, sess := range m.sessions {
		if sess.client.Snapshot().Loading {
			loading++
		}
	}
	return map[string]interface{}{
		"sessions":  len(m.sessions),
		"active_id": string(m.activeID),
		"loading":   loading,
		"engine":    m.engine.ID,
	}
}

// Shutdown closes every session, newest first.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]id.SessionID, len(m.order))
	copy(ids, m.order)
	m.mu.Unlock()

	for i := len(ids) - 1; i >= 0; i-- {
		if err := m.Close(ids[i]); err != nil && !errors.Is(err, ErrNotFound) {
			m.logger.Warn("session shutdown failed",
				zap.String("session_id", string(ids[i])),
				zap.Error(err))
		}
	}
}

// resolve maps a session id to its record. An empty id means the active
// session; no active session resolves to (nil, nil) so callers can treat the
// operation as a no-op. An explicit unknown id is an error.
func (m *Manager) resolve(sid id.SessionID) (*managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sid == "" {
		return m.sessions[m.activeID], nil
	}
	sess, ok := m.sessions[sid]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// forward is the bubbling filter between client events and the outbound
// stream. Passive kinds refresh the stored tab metadata and always pass;
// everything else passes only when it originates from the active session.
func (m *Manager) forward(ev events.Event) {
	sid := id.SessionID(ev.SessionID)

	var updated *Updated
	m.mu.Lock()
	activeID := m.activeID
	if events.Passive(ev.Kind) {
		if sess, ok := m.sessions[sid]; ok {
			switch ev.Kind {
			case events.KindTitleChange:
				if title, ok := ev.Payload.(string); ok {
					sess.title = title
				}
			case events.KindFaviconChange:
				if favicon, ok := ev.Payload.(string); ok {
					sess.favicon = favicon
				}
			}
			updated = &Updated{ID: string(sid), Title: sess.title, Favicon: sess.favicon}
		}
	}
	m.mu.Unlock()

	if !events.ShouldBubble(ev.Kind, ev.SessionID, string(activeID)) {
		if m.metrics != nil {
			m.metrics.RecordDropped(string(ev.Kind))
		}
		return
	}

	if m.metrics != nil {
		m.metrics.RecordBubbled(string(ev.Kind))
	}
	m.emitter.Emit(ev)
	if updated != nil {
		m.emitter.Emit(events.New(events.KindUpdated, string(sid), *updated))
	}
}
