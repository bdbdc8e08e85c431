// Package events defines the typed notification stream shared by session
// clients, the session manager, and the host UI transport.
//
// Two forwarding policies exist. Passive kinds (title, favicon, updated)
// always cross the manager boundary so a tab strip can stay current for
// background sessions. Every other kind is active-only: the manager forwards
// it solely when the originating session is the active one.
package events

import (
	"time"
)

// Kind classifies a notification.
type Kind string

const (
	KindCreated       Kind = "created"
	KindChanged       Kind = "changed"
	KindClosed        Kind = "closed"
	KindUpdated       Kind = "updated"
	KindReady         Kind = "ready"
	KindError         Kind = "error"
	KindNavigating    Kind = "navigating"
	KindURLChange     Kind = "url_change"
	KindTitleChange   Kind = "title_change"
	KindFaviconChange Kind = "favicon_change"
	KindStatusChange  Kind = "status_change"
	KindLoadingStart  Kind = "loading_start"
	KindLoadingStop   Kind = "loading_stop"
)

// Event is one notification on the stream.
type Event struct {
	Kind      Kind        `json:"kind"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Navigation carries both forms of a destination during navigation start.
type Navigation struct {
	Original string `json:"original"`
	Encoded  string `json:"encoded"`
}

// URLChange carries the raw and decoded forms of an observed location change.
type URLChange struct {
	Original string `json:"original"`
	Decoded  string `json:"decoded"`
}

// ErrorInfo carries a failure cause on error notifications.
type ErrorInfo struct {
	Message string `json:"message"`
	Step    string `json:"step,omitempty"`
}

// Passive reports whether a kind is forwarded regardless of which session is
// active. Title and favicon changes feed the tab strip; updated is the
// manager's synthetic metadata notification.
func Passive(k Kind) bool {
	switch k {
	case KindTitleChange, KindFaviconChange, KindUpdated:
		return true
	}
	return false
}

// ShouldBubble is the forwarding policy: passive kinds always pass, everything
// else passes only when the originating session is the active one. Pure so it
// can be tested without constructing surfaces.
func ShouldBubble(k Kind, originID, activeID string) bool {
	if Passive(k) {
		return true
	}
	return originID != "" && originID == activeID
}

// New constructs an event stamped with the current time.
func New(k Kind, sessionID string, payload interface{}) Event {
	return Event{
		Kind:      k,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
