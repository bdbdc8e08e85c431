// Package worker registers the request-intercepting background worker and
// answers scope-control queries for it.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-resty/resty/v2"
)

// RegistrationOptions mirror the registration call of the worker host.
type RegistrationOptions struct {
	Scope string `json:"scope"`
	Type  string `json:"type"`
}

// Registrar installs the background worker and reports readiness.
type Registrar interface {
	Register(ctx context.Context, scriptRef string, opts RegistrationOptions) error
	WaitReady(ctx context.Context) error
	Controls(path string) bool
}

type statusBody struct {
	State      string `json:"state"`
	Controlled bool   `json:"controlled"`
}

// HTTPRegistrar talks to the worker host over HTTP. One registrar is shared
// by every session client, so the registered scope is mutex-guarded.
type HTTPRegistrar struct {
	client   *resty.Client
	endpoint string

	mu    sync.Mutex
	scope string
}

// NewHTTP creates a registrar for the given worker host endpoint.
func NewHTTP(endpoint string, timeout time.Duration) *HTTPRegistrar {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "spyglass/1.0")

	return &HTTPRegistrar{client: client, endpoint: strings.TrimRight(endpoint, "/")}
}

// Register installs the worker script. A registration that succeeds without
// the worker taking control is retried once with an activation nudge; a second
// miss is reported as an error to the caller.
func (r *HTTPRegistrar) Register(ctx context.Context, scriptRef string, opts RegistrationOptions) error {
	if scriptRef == "" {
		return fmt.Errorf("worker script ref is empty")
	}
	r.mu.Lock()
	r.scope = opts.Scope
	r.mu.Unlock()

	controlled, err := r.register(ctx, scriptRef, opts, false)
	if err != nil {
		return err
	}
	if controlled {
		return nil
	}

	// Registered but not controlling: force one activation pass.
	controlled, err = r.register(ctx, scriptRef, opts, true)
	if err != nil {
		return err
	}
	if !controlled {
		return fmt.Errorf("worker %s registered but never took control of %s", scriptRef, opts.Scope)
	}
	return nil
}

func (r *HTTPRegistrar) register(ctx context.Context, scriptRef string, opts RegistrationOptions, claim bool) (bool, error) {
	var status statusBody
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"script": scriptRef,
			"scope":  opts.Scope,
			"type":   opts.Type,
			"claim":  claim,
		}).
		SetResult(&status).
		ForceContentType("application/json").
		Post(r.endpoint + "/register")
	if err != nil {
		return false, fmt.Errorf("worker registration failed: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("worker registration failed: HTTP %d", resp.StatusCode())
	}
	return status.Controlled, nil
}

// WaitReady polls the worker host until it reports an activated worker or the
// context expires.
func (r *HTTPRegistrar) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		var status statusBody
		resp, err := r.client.R().
			SetContext(ctx).
			SetResult(&status).
			ForceContentType("application/json").
			Get(r.endpoint + "/status")
		if err == nil && !resp.IsError() && status.State == "activated" {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("worker never became ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Controls reports whether a request path falls inside the registered scope.
func (r *HTTPRegistrar) Controls(path string) bool {
	r.mu.Lock()
	scope := r.scope
	r.mu.Unlock()

	if scope == "" {
		return false
	}
	ok, err := doublestar.Match(scope, path)
	return err == nil && ok
}
