// Package session implements the session collection: an ordered set of
// proxied browsing sessions of which at most one is active. The manager owns
// surface lifecycles, routes commands to the right client, and applies the
// forwarding policy to the merged event stream.
package session

import (
	"time"

	"github.com/spyglassproxy/spyglass/internal/domain/client"
	"github.com/spyglassproxy/spyglass/internal/domain/surface"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

// DefaultTitle is the placeholder shown before a session's first document
// reports its own title.
const DefaultTitle = "New Tab"

// Info is the externally visible snapshot of one session.
type Info struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Favicon   string       `json:"favicon"`
	Active    bool         `json:"active"`
	State     client.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
}

// Updated is the payload of the manager's synthetic metadata notification,
// emitted whenever a session's stored title or favicon changes so tab strips
// can refresh background entries.
type Updated struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Favicon string `json:"favicon"`
}

// Closed is the payload of a session-closed notification.
type Closed struct {
	ID string `json:"id"`
}

// managed is the manager's bookkeeping for one live session.
type managed struct {
	id          id.SessionID
	client      *client.Client
	surf        surface.Surface
	title       string
	favicon     string
	createdAt   time.Time
	unsubscribe func()
}

func (s *managed) info(activeID id.SessionID) Info {
	return Info{
		ID:        string(s.id),
		Title:     s.title,
		Favicon:   s.favicon,
		Active:    s.id == activeID,
		State:     s.client.Snapshot(),
		CreatedAt: s.createdAt,
	}
}
