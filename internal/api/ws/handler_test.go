package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglassproxy/spyglass/internal/domain/client"
	"github.com/spyglassproxy/spyglass/internal/domain/session"
	"github.com/spyglassproxy/spyglass/internal/domain/surface"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/prefs"
	"github.com/spyglassproxy/spyglass/internal/rewrite"
	"github.com/spyglassproxy/spyglass/internal/search"
	"github.com/spyglassproxy/spyglass/internal/shared/id"
	"github.com/spyglassproxy/spyglass/internal/transport"
	"github.com/spyglassproxy/spyglass/internal/worker"
)

type stubTransport struct{}

func (stubTransport) SetTransport(context.Context, string, []transport.DialOption) error { return nil }

type stubWorker struct{}

func (stubWorker) Register(context.Context, string, worker.RegistrationOptions) error { return nil }
func (stubWorker) WaitReady(context.Context) error                                    { return nil }
func (stubWorker) Controls(string) bool                                               { return true }

func newStream(t *testing.T) (*websocket.Conn, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := search.NewRegistry()
	require.NoError(t, err)

	manager := session.NewManager(session.Config{
		Factory: &surface.FakeFactory{},
		Collaborators: client.Collaborators{
			Codec:     rewrite.NewXOR("/service/", "testkey"),
			Transport: stubTransport{},
			Worker:    stubWorker{},

			TransportEndpoint: "ws://localhost:4000/wisp/",
			WorkerScript:      "sw.js",
			WorkerScope:       "/service/**",
			WorkerType:        "module",
		},
		Registry:     registry,
		Prefs:        prefs.NewMemory(),
		PollInterval: 10 * time.Millisecond,
		Logger:       logging.NewNop(),
	})
	t.Cleanup(manager.Shutdown)

	handler := NewHandler(manager, logging.NewNop(), nil)
	router := gin.New()
	router.GET("/stream", handler.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, manager
}

func send(t *testing.T, conn *websocket.Conn, body map[string]interface{}) {
	t.Helper()
	frame, err := sonic.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// readUntil reads frames until one matches the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for frame type %q", wantType)

		var frame map[string]interface{}
		require.NoError(t, sonic.Unmarshal(raw, &frame))
		if frame["type"] == wantType {
			return frame
		}
	}
}

// readEvent reads frames until an event of the wanted kind arrives.
func readEvent(t *testing.T, conn *websocket.Conn, wantKind string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for event kind %q", wantKind)

		var frame map[string]interface{}
		require.NoError(t, sonic.Unmarshal(raw, &frame))
		if frame["type"] != "event" {
			continue
		}
		event := frame["event"].(map[string]interface{})
		if event["kind"] == wantKind {
			return event
		}
	}
}

func waitReady(t *testing.T, manager *session.Manager, sid string) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := manager.Get(id.SessionID(sid))
		return err == nil && got.State.Ready
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStreamWelcomeAndPing(t *testing.T) {
	conn, _ := newStream(t)

	readUntil(t, conn, "system")
	send(t, conn, map[string]interface{}{"type": "ping"})
	readUntil(t, conn, "pong")
}

func TestStreamSessionLifecycle(t *testing.T) {
	conn, manager := newStream(t)
	readUntil(t, conn, "system")

	send(t, conn, map[string]interface{}{"type": "create_session"})
	created := readUntil(t, conn, "session_created")
	info := created["session"].(map[string]interface{})
	sid := info["id"].(string)
	assert.Equal(t, "New Tab", info["title"])

	// The created event reaches the stream too.
	readEvent(t, conn, "created")

	waitReady(t, manager, sid)
	send(t, conn, map[string]interface{}{"type": "navigate", "session_id": sid, "input": "example.com"})
	navigated := readUntil(t, conn, "navigated")
	assert.NotEmpty(t, navigated["encoded"])
	readEvent(t, conn, "navigating")

	send(t, conn, map[string]interface{}{"type": "close_session", "session_id": sid})
	readEvent(t, conn, "closed")
	assert.Equal(t, 0, manager.Count())
}

func TestStreamUnknownCommand(t *testing.T) {
	conn, _ := newStream(t)
	readUntil(t, conn, "system")

	send(t, conn, map[string]interface{}{"type": "frobnicate"})
	frame := readUntil(t, conn, "error")
	assert.Equal(t, "unknown command type", frame["error"])
}

func TestStreamMalformedCommand(t *testing.T) {
	conn, _ := newStream(t)
	readUntil(t, conn, "system")

	send(t, conn, map[string]interface{}{"type": "navigate", "session_id": "sess_missing", "input": "x"})
	frame := readUntil(t, conn, "error")
	assert.Contains(t, frame["error"], "not found")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	frame = readUntil(t, conn, "error")
	assert.Equal(t, "malformed command", frame["error"])
}
