// Package surface defines the display surface primitive: an isolated,
// navigable rendering region owned by exactly one session.
//
// The core never assumes a rendering technology. A surface is an opaque
// resource with load/read/subscribe/history operations; the fetching
// implementation in this package renders documents by proxying them over
// HTTP, and tests substitute a scripted fake.
package surface

import (
	"errors"

	"github.com/spyglassproxy/spyglass/internal/shared/id"
)

// ErrClosed is returned by operations on a destroyed surface. Observation
// loops treat it like any other read failure: skip the tick, never crash.
var ErrClosed = errors.New("surface is closed")

// ReadyState mirrors a document's load progress.
type ReadyState string

const (
	ReadyStateLoading  ReadyState = "loading"
	ReadyStateComplete ReadyState = "complete"
)

// SignalKind distinguishes load lifecycle signals.
type SignalKind int

const (
	SignalLoadStart SignalKind = iota
	SignalLoadComplete
)

// LoadSignal is emitted by a surface when a navigation begins or finishes.
type LoadSignal struct {
	Kind     SignalKind
	Location string
}

// Surface is one isolated display region.
type Surface interface {
	ID() id.SurfaceID

	// Load navigates the surface to an encoded (proxied) destination.
	Load(encoded string) error

	// Reads. All of these fail with ErrClosed after Close; reads may also
	// fail transiently mid-navigation.
	Location() (string, error)
	Title() (string, error)
	Favicon() (string, error)
	State() (ReadyState, error)

	// History primitives.
	Back() error
	Forward() error
	Reload() error

	// Visibility toggles for the active/background distinction.
	Show()
	Hide()
	Visible() bool

	// Signals delivers load-start/load-complete notifications. The channel
	// closes when the surface is destroyed.
	Signals() <-chan LoadSignal

	Close() error
}

// Factory creates surfaces for the session manager.
type Factory interface {
	New() (Surface, error)
}
