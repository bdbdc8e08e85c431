// Package http contains the REST handlers for session control.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/spyglassproxy/spyglass/internal/domain/client"
	"github.com/spyglassproxy/spyglass/internal/domain/session"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/search"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	sessions *session.Manager
	registry *search.Registry
	logger   *logging.Logger
	started  time.Time
}

// NewHandlers creates a new handler set.
func NewHandlers(sessions *session.Manager, registry *search.Registry, logger *logging.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		registry: registry,
		logger:   logger,
		started:  time.Now(),
	}
}

// Root reports basic service identity.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "spyglass",
		"version": "1.0.0",
	})
}

// Health reports liveness details.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"sessions":       h.sessions.Stats(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// ListSessions lists all sessions in creation order.
func (h *Handlers) ListSessions(c *gin.Context) {
	infos := h.sessions.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": infos,
		"count":    len(infos),
	})
}

type createSessionRequest struct {
	URL string `json:"url"`
}

// CreateSession opens a new session, optionally navigating it to an initial
// destination once its client is ready.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	info, err := h.sessions.Create(req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": info})
}

// GetSession returns one session's snapshot.
func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.sessions.Get(id.SessionID(c.Param("id")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": info})
}

// SwitchSession makes a session active.
func (h *Handlers) SwitchSession(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))
	if err := h.sessions.Switch(sid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": string(sid)})
}

// CloseSession destroys a session.
func (h *Handlers) CloseSession(c *gin.Context) {
	sid := id.SessionID(c.Param("id"))
	if err := h.sessions.Close(sid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": string(sid)})
}

type navigateRequest struct {
	Input string `json:"input" binding:"required"`
}

// Navigate routes address bar input to a session.
func (h *Handlers) Navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	encoded, err := h.sessions.Navigate(id.SessionID(c.Param("id")), req.Input)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"encoded": encoded})
}

// Back steps a session's history backwards.
func (h *Handlers) Back(c *gin.Context) {
	h.history(c, h.sessions.Back)
}

// Forward steps a session's history forwards.
func (h *Handlers) Forward(c *gin.Context) {
	h.history(c, h.sessions.Forward)
}

// Reload re-requests a session's current document.
func (h *Handlers) Reload(c *gin.Context) {
	h.history(c, h.sessions.Reload)
}

func (h *Handlers) history(c *gin.Context, op func(id.SessionID) error) {
	sid := id.SessionID(c.Param("id"))
	if err := op(sid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": string(sid)})
}

// ListEngines returns the search engine catalog and the current selection.
func (h *Handlers) ListEngines(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engines": h.registry.List(),
		"current": h.sessions.SearchEngine().ID,
	})
}

type setEngineRequest struct {
	ID string `json:"id" binding:"required"`
}

// SetEngine selects and persists the search engine.
func (h *Handlers) SetEngine(c *gin.Context) {
	var req setEngineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sessions.SetSearchEngine(req.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": req.ID})
}

// fail maps domain errors onto HTTP status codes.
func (h *Handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrUnknownEngine):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, client.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, client.ErrInvalidSurface):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
