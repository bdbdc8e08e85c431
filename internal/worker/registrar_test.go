package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterControlledFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/register", req.URL.Path)
		json.NewEncoder(w).Encode(statusBody{State: "activated", Controlled: true})
	}))
	defer srv.Close()

	r := NewHTTP(srv.URL, time.Second)
	err := r.Register(context.Background(), "sw.js", RegistrationOptions{Scope: "/service/**", Type: "module"})
	require.NoError(t, err)
}

func TestRegisterRetriesWithClaim(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Claim bool `json:"claim"`
		}
		json.NewDecoder(req.Body).Decode(&body)
		n := calls.Add(1)
		// First registration does not take control; claimed retry does.
		json.NewEncoder(w).Encode(statusBody{Controlled: body.Claim})
		if n == 1 {
			assert.False(t, body.Claim)
		}
	}))
	defer srv.Close()

	r := NewHTTP(srv.URL, time.Second)
	err := r.Register(context.Background(), "sw.js", RegistrationOptions{Scope: "/service/**"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRegisterNeverControls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(statusBody{Controlled: false})
	}))
	defer srv.Close()

	r := NewHTTP(srv.URL, time.Second)
	err := r.Register(context.Background(), "sw.js", RegistrationOptions{Scope: "/service/**"})
	assert.Error(t, err)
}

func TestWaitReady(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		state := "installing"
		if polls.Add(1) >= 2 {
			state = "activated"
		}
		json.NewEncoder(w).Encode(statusBody{State: state})
	}))
	defer srv.Close()

	r := NewHTTP(srv.URL, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.WaitReady(ctx))
}

func TestWaitReadyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(statusBody{State: "installing"})
	}))
	defer srv.Close()

	r := NewHTTP(srv.URL, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	assert.Error(t, r.WaitReady(ctx))
}

func TestRegisterWithoutContentType(t *testing.T) {
	// Worker hosts do not always label their responses; the body alone must
	// be enough to read the registration outcome.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, `{"state":"activated","controlled":true}`)
	}))
	defer srv.Close()

	r := NewHTTP(srv.URL, time.Second)
	require.NoError(t, r.Register(context.Background(), "sw.js", RegistrationOptions{Scope: "/service/**"}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.WaitReady(ctx))
}

func TestRegisterSharedAcrossClients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(statusBody{State: "activated", Controlled: true})
	}))
	defer srv.Close()

	// One registrar serves every session client, so registration and scope
	// queries overlap.
	r := NewHTTP(srv.URL, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Register(context.Background(), "sw.js", RegistrationOptions{Scope: "/service/**"})
			assert.NoError(t, err)
			r.Controls("/service/abc")
		}()
	}
	wg.Wait()
	assert.True(t, r.Controls("/service/abc"))
}

func TestControls(t *testing.T) {
	r := NewHTTP("http://localhost:0", time.Second)
	assert.False(t, r.Controls("/service/abc"), "no scope registered yet")

	r.scope = "/service/**"
	assert.True(t, r.Controls("/service/abc"))
	assert.True(t, r.Controls("/service/a/b/c"))
	assert.False(t, r.Controls("/other/abc"))
}
