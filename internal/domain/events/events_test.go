package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldBubble(t *testing.T) {
	tests := []struct {
		name   string
		kind   Kind
		origin string
		active string
		want   bool
	}{
		{"title change from background session", KindTitleChange, "sess_a", "sess_b", true},
		{"favicon change from background session", KindFaviconChange, "sess_a", "sess_b", true},
		{"updated from background session", KindUpdated, "sess_a", "sess_b", true},
		{"url change from active session", KindURLChange, "sess_a", "sess_a", true},
		{"url change from background session", KindURLChange, "sess_a", "sess_b", false},
		{"loading start from background session", KindLoadingStart, "sess_a", "sess_b", false},
		{"loading stop from active session", KindLoadingStop, "sess_a", "sess_a", true},
		{"status change from background session", KindStatusChange, "sess_a", "sess_b", false},
		{"error from background session", KindError, "sess_a", "sess_b", false},
		{"ready from active session", KindReady, "sess_a", "sess_a", true},
		{"navigating with no active session", KindNavigating, "sess_a", "", false},
		{"empty origin never bubbles active-only", KindURLChange, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldBubble(tt.kind, tt.origin, tt.active))
		})
	}
}

func TestEmitterSubscribeUnsubscribe(t *testing.T) {
	e := NewEmitter()

	var got []Kind
	cancel := e.Subscribe(func(ev Event) {
		got = append(got, ev.Kind)
	})

	e.Emit(New(KindCreated, "sess_a", nil))
	cancel()
	e.Emit(New(KindClosed, "sess_a", nil))

	assert.Equal(t, []Kind{KindCreated}, got)

	// Double cancel is harmless.
	cancel()
}

func TestEmitterDispatchOrder(t *testing.T) {
	e := NewEmitter()

	var order []int
	e.Subscribe(func(Event) { order = append(order, 1) })
	e.Subscribe(func(Event) { order = append(order, 2) })
	e.Subscribe(func(Event) { order = append(order, 3) })

	e.Emit(New(KindReady, "sess_a", nil))

	assert.Equal(t, []int{1, 2, 3}, order)
}
