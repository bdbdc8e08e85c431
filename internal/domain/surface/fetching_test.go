package surface

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/rewrite"
)

func newTestSurface(t *testing.T, handler http.HandlerFunc) (*Fetching, *httptest.Server, rewrite.Codec) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	codec := rewrite.NewXOR("/service/", "testkey")
	s := NewFetching(codec, NewFetcher(5*time.Second), logging.NewNop(), 5*time.Second)
	t.Cleanup(func() { s.Close() })
	return s, srv, codec
}

func waitSignal(t *testing.T, s Surface, kind SignalKind) LoadSignal {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case sig, ok := <-s.Signals():
			require.True(t, ok, "signal channel closed while waiting")
			if sig.Kind == kind {
				return sig
			}
		case <-deadline:
			t.Fatal("timed out waiting for load signal")
		}
	}
}

func TestLoadEmitsStartAndComplete(t *testing.T) {
	s, srv, codec := newTestSurface(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Loaded</title></head></html>`))
	})

	encoded := codec.Encode(srv.URL)
	require.NoError(t, s.Load(encoded))

	start := waitSignal(t, s, SignalLoadStart)
	assert.Equal(t, encoded, start.Location)

	waitSignal(t, s, SignalLoadComplete)

	title, err := s.Title()
	require.NoError(t, err)
	assert.Equal(t, "Loaded", title)

	state, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, ReadyStateComplete, state)

	loc, err := s.Location()
	require.NoError(t, err)
	assert.Equal(t, encoded, loc)
}

func TestLoadFailureStillCompletes(t *testing.T) {
	s, srv, codec := newTestSurface(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	require.NoError(t, s.Load(codec.Encode(srv.URL)))
	waitSignal(t, s, SignalLoadComplete)

	title, err := s.Title()
	require.NoError(t, err)
	assert.Equal(t, "Problem loading page", title)
}

func TestHistoryBackForwardReload(t *testing.T) {
	s, srv, codec := newTestSurface(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>` + r.URL.Path + `</title></head></html>`))
	})

	first := codec.Encode(srv.URL + "/one")
	second := codec.Encode(srv.URL + "/two")

	require.NoError(t, s.Load(first))
	waitSignal(t, s, SignalLoadComplete)
	require.NoError(t, s.Load(second))
	waitSignal(t, s, SignalLoadComplete)

	require.NoError(t, s.Back())
	waitSignal(t, s, SignalLoadComplete)
	loc, err := s.Location()
	require.NoError(t, err)
	assert.Equal(t, first, loc)

	require.NoError(t, s.Forward())
	waitSignal(t, s, SignalLoadComplete)
	loc, err = s.Location()
	require.NoError(t, err)
	assert.Equal(t, second, loc)

	require.NoError(t, s.Reload())
	waitSignal(t, s, SignalLoadComplete)
	loc, err = s.Location()
	require.NoError(t, err)
	assert.Equal(t, second, loc)
}

func TestBackAtHistoryStartIsNoop(t *testing.T) {
	s, _, _ := newTestSurface(t, func(w http.ResponseWriter, r *http.Request) {})

	require.NoError(t, s.Back())
	require.NoError(t, s.Forward())
	require.NoError(t, s.Reload())

	select {
	case sig := <-s.Signals():
		t.Fatalf("unexpected signal %v", sig)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseInvalidatesReads(t *testing.T) {
	s, _, _ := newTestSurface(t, func(w http.ResponseWriter, r *http.Request) {})

	require.NoError(t, s.Close())

	_, err := s.Location()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.State()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Load("/service/abc"), ErrClosed)

	// Idempotent close.
	require.NoError(t, s.Close())
}

func TestVisibilityToggles(t *testing.T) {
	s, _, _ := newTestSurface(t, func(w http.ResponseWriter, r *http.Request) {})

	assert.False(t, s.Visible())
	s.Show()
	assert.True(t, s.Visible())
	s.Hide()
	assert.False(t, s.Visible())
}
