package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when navigation is attempted before the
	// client's dependency services are wired.
	ErrNotReady = errors.New("session client is not ready")

	// ErrInvalidSurface is returned when a handle that is not a renderable
	// surface is bound.
	ErrInvalidSurface = errors.New("invalid display surface")

	// ErrUnsupportedEnvironment is returned when the host lacks the
	// isolation primitives proxied sessions require. Fatal to one client,
	// never to the process.
	ErrUnsupportedEnvironment = errors.New("environment cannot run proxied sessions")
)

// DependencyError wraps a failed setup step during initialization. The
// failure is terminal for the owning session and is surfaced exactly once via
// an error notification.
type DependencyError struct {
	Step string
	Err  error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Step, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }
