// Package transport configures the network tunnel the proxied sessions fetch
// through. The configurator performs a single-shot handshake against the
// tunnel endpoint; it does not own the data path.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// DialOption carries per-transport dial settings.
type DialOption struct {
	DialTarget string `json:"dial_target,omitempty"`
}

// Configurator wires a session onto a transport endpoint.
type Configurator interface {
	SetTransport(ctx context.Context, endpointRef string, opts []DialOption) error
}

type configFrame struct {
	Type    string       `json:"type"`
	Options []DialOption `json:"options,omitempty"`
}

type ackFrame struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// WSConfigurator dials the tunnel endpoint over WebSocket, sends a config
// frame, and waits for an ack. The handshake connection is closed afterwards;
// the background worker owns the long-lived data path.
type WSConfigurator struct {
	dialer  *websocket.Dialer
	timeout time.Duration

	mu         sync.Mutex
	configured string // last endpoint successfully configured
}

// NewWS creates a WebSocket transport configurator.
func NewWS(timeout time.Duration) *WSConfigurator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WSConfigurator{
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		timeout: timeout,
	}
}

// SetTransport performs the handshake. Any failure is a setup failure for the
// calling session client.
func (c *WSConfigurator) SetTransport(ctx context.Context, endpointRef string, opts []DialOption) error {
	if endpointRef == "" {
		return fmt.Errorf("transport endpoint is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, endpointRef, nil)
	if err != nil {
		return fmt.Errorf("failed to dial transport %s: %w", endpointRef, err)
	}
	defer conn.Close()

	frame, err := sonic.Marshal(configFrame{Type: "configure", Options: opts})
	if err != nil {
		return fmt.Errorf("failed to encode transport config: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to send transport config: %w", err)
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("transport handshake read failed: %w", err)
	}

	var ack ackFrame
	if err := sonic.Unmarshal(raw, &ack); err != nil {
		return fmt.Errorf("transport handshake returned malformed ack: %w", err)
	}
	if ack.Type != "ack" || ack.Error != "" {
		return fmt.Errorf("transport refused configuration: %s", ack.Error)
	}

	c.mu.Lock()
	c.configured = endpointRef
	c.mu.Unlock()
	return nil
}

// Configured returns the last endpoint a handshake succeeded against.
func (c *WSConfigurator) Configured() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}
