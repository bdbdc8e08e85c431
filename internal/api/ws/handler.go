// Package ws streams session events to the host UI and accepts session
// commands over a single WebSocket connection.
package ws

import (
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spyglassproxy/spyglass/internal/domain/events"
	"github.com/spyglassproxy/spyglass/internal/domain/session"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/monitoring"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the fronting proxy.
		return true
	},
}

// Handler manages WebSocket connections.
type Handler struct {
	sessions *session.Manager
	logger   *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler.
func NewHandler(sessions *session.Manager, logger *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger, metrics: metrics}
}

// command is one inbound message from the host UI.
type command struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Input     string `json:"input,omitempty"`
	URL       string `json:"url,omitempty"`
	Engine    string `json:"engine,omitempty"`
}

// outbox serializes outbound frames through one writer goroutine. Event
// handlers run on observation goroutines, so writes cannot go straight to the
// connection. A slow consumer drops frames rather than blocking the domain.
type outbox struct {
	mu     sync.Mutex
	closed bool
	ch     chan []byte
}

func newOutbox() *outbox {
	return &outbox{ch: make(chan []byte, 256)}
}

func (o *outbox) send(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- frame:
		return true
	default:
		return false
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// HandleConnection upgrades the request and pumps events and commands until
// either side goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	h.logger.Info("stream connected", zap.String("conn_id", connID))

	out := newOutbox()
	defer out.close()

	unsubscribe := h.sessions.Subscribe(func(ev events.Event) {
		frame, err := sonic.Marshal(gin.H{"type": "event", "event": ev})
		if err != nil {
			return
		}
		if !out.send(frame) && h.metrics != nil {
			h.metrics.RecordWSMessage("out", "dropped")
		}
	})
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for frame := range out.ch {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			if h.metrics != nil {
				h.metrics.RecordWSMessage("out", "frame")
			}
		}
	}()

	h.reply(out, gin.H{"type": "system", "message": "connected to spyglass"})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var cmd command
		if err := sonic.Unmarshal(raw, &cmd); err != nil {
			h.reply(out, gin.H{"type": "error", "error": "malformed command"})
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWSMessage("in", cmd.Type)
		}
		h.dispatch(out, cmd)
	}

	h.logger.Info("stream disconnected", zap.String("conn_id", connID))
	out.close()
	<-writerDone
}

func (h *Handler) dispatch(out *outbox, cmd command) {
	switch cmd.Type {
	case "create_session":
		info, err := h.sessions.Create(cmd.URL)
		if err != nil {
			h.replyError(out, err)
			return
		}
		h.reply(out, gin.H{"type": "session_created", "session": info})

	case "switch_session":
		if err := h.sessions.Switch(id.SessionID(cmd.SessionID)); err != nil {
			h.replyError(out, err)
		}

	case "close_session":
		if err := h.sessions.Close(id.SessionID(cmd.SessionID)); err != nil {
			h.replyError(out, err)
		}

	case "navigate":
		encoded, err := h.sessions.Navigate(id.SessionID(cmd.SessionID), cmd.Input)
		if err != nil {
			h.replyError(out, err)
			return
		}
		h.reply(out, gin.H{"type": "navigated", "session_id": cmd.SessionID, "encoded": encoded})

	case "back":
		if err := h.sessions.Back(id.SessionID(cmd.SessionID)); err != nil {
			h.replyError(out, err)
		}

	case "forward":
		if err := h.sessions.Forward(id.SessionID(cmd.SessionID)); err != nil {
			h.replyError(out, err)
		}

	case "reload":
		if err := h.sessions.Reload(id.SessionID(cmd.SessionID)); err != nil {
			h.replyError(out, err)
		}

	case "set_search_engine":
		if err := h.sessions.SetSearchEngine(cmd.Engine); err != nil {
			h.replyError(out, err)
			return
		}
		h.reply(out, gin.H{"type": "search_engine_set", "engine": cmd.Engine})

	case "list_sessions":
		h.reply(out, gin.H{"type": "sessions", "sessions": h.sessions.List()})

	case "ping":
		h.reply(out, gin.H{"type": "pong"})

	default:
		h.reply(out, gin.H{"type": "error", "error": "unknown command type"})
	}
}

func (h *Handler) reply(out *outbox, body gin.H) {
	frame, err := sonic.Marshal(body)
	if err != nil {
		return
	}
	out.send(frame)
}

func (h *Handler) replyError(out *outbox, err error) {
	h.reply(out, gin.H{"type": "error", "error": err.Error()})
}
