package client

import (
	"context"
	"time"

	"github.com/spyglassproxy/spyglass/internal/domain/events"
	"github.com/spyglassproxy/spyglass/internal/domain/surface"
)

// observe watches one surface until the context is cancelled. Load signals
// from the surface drive the loading state; a ticker provides the fallback
// for navigations that never signal, like same-document route changes inside
// a proxied application.
func (c *Client) observe(ctx context.Context, surf surface.Surface, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	signals := surf.Signals()
	for {
		select {
		case <-ctx.Done():
			return

		case sig, ok := <-signals:
			if !ok {
				// Surface destroyed. Stop selecting on the closed channel
				// and let cancellation end the loop.
				signals = nil
				continue
			}
			switch sig.Kind {
			case surface.SignalLoadStart:
				c.onLoadStart()
			case surface.SignalLoadComplete:
				c.onLoadComplete(surf)
			}

		case <-ticker.C:
			c.onTick(surf)
		}
	}
}

// onLoadStart mirrors a surface-initiated load into the loading flag. Loads
// started by Navigate already set the flag, so this only fires for link
// clicks and redirects inside the surface.
func (c *Client) onLoadStart() {
	c.mu.Lock()
	started := !c.loading
	c.loading = true
	c.mu.Unlock()

	if started {
		c.emit(events.KindLoadingStart, nil)
	}
}

func (c *Client) onLoadComplete(surf surface.Surface) {
	c.mu.Lock()
	wasLoading := c.loading
	c.loading = false
	c.mu.Unlock()

	if wasLoading {
		c.emit(events.KindLoadingStop, nil)
	}
	c.syncMetadata(surf)
}

// onTick is the polling fallback. If the surface settled without ever
// signalling completion, the loading flag is corrected here; metadata is
// compared on every tick regardless.
func (c *Client) onTick(surf surface.Surface) {
	if state, err := surf.State(); err == nil {
		c.mu.Lock()
		forced := c.loading && state == surface.ReadyStateComplete
		if forced {
			c.loading = false
		}
		c.mu.Unlock()

		if forced {
			c.emit(events.KindLoadingStop, nil)
		}
	}

	c.syncMetadata(surf)
}

// syncMetadata reads the surface's title, favicon, and location, and emits a
// change event for each value that differs from the last known one. Reads can
// fail transiently mid-navigation or after close; a failed read skips that
// field and the next tick retries.
func (c *Client) syncMetadata(surf surface.Surface) {
	title, titleErr := surf.Title()
	favicon, faviconErr := surf.Favicon()
	location, locationErr := surf.Location()

	c.mu.Lock()
	var pending []events.Event

	if titleErr == nil && title != c.lastTitle {
		c.lastTitle = title
		pending = append(pending, events.New(events.KindTitleChange, string(c.sessionID), title))
	}
	if faviconErr == nil && favicon != c.lastFavicon {
		c.lastFavicon = favicon
		pending = append(pending, events.New(events.KindFaviconChange, string(c.sessionID), favicon))
	}
	if locationErr == nil && location != c.lastURL {
		c.lastURL = location
		decoded := location
		if c.ready && c.collab.Codec != nil {
			decoded = c.collab.Codec.Decode(location)
		}
		pending = append(pending, events.New(events.KindURLChange, string(c.sessionID), events.URLChange{
			Original: location,
			Decoded:  decoded,
		}))
	}
	c.mu.Unlock()

	for _, ev := range pending {
		c.emitter.Emit(ev)
	}
}
