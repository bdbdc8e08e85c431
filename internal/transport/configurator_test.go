package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// tunnelStub accepts the handshake and replies with the scripted ack.
func tunnelStub(t *testing.T, ack ackFrame, got *configFrame) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if got != nil {
			_ = sonic.Unmarshal(raw, got)
		}

		frame, _ := sonic.Marshal(ack)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSetTransportHandshake(t *testing.T) {
	var got configFrame
	endpoint := tunnelStub(t, ackFrame{Type: "ack"}, &got)

	c := NewWS(time.Second)
	err := c.SetTransport(context.Background(), endpoint, []DialOption{{DialTarget: "wss://relay.example.com/"}})

	require.NoError(t, err)
	assert.Equal(t, "configure", got.Type)
	require.Len(t, got.Options, 1)
	assert.Equal(t, "wss://relay.example.com/", got.Options[0].DialTarget)
	assert.Equal(t, endpoint, c.Configured())
}

func TestSetTransportRefused(t *testing.T) {
	endpoint := tunnelStub(t, ackFrame{Type: "ack", Error: "unsupported protocol"}, nil)

	c := NewWS(time.Second)
	err := c.SetTransport(context.Background(), endpoint, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported protocol")
	assert.Empty(t, c.Configured())
}

func TestSetTransportEmptyEndpoint(t *testing.T) {
	c := NewWS(time.Second)
	assert.Error(t, c.SetTransport(context.Background(), "", nil))
}

func TestSetTransportUnreachable(t *testing.T) {
	c := NewWS(200 * time.Millisecond)
	err := c.SetTransport(context.Background(), "ws://127.0.0.1:1/", nil)
	assert.Error(t, err)
}
