package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-gesture/internal/log"
)

// attach registers a bare client (no websocket) for fan-out tests.
func attach(h *Hub) *Client {
	c := &Client{hub: h, send: make(chan Message, 2)}
	h.register <- c
	return c
}

func TestHub_BroadcastFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("events", log.Discard())
	go h.Run(ctx)

	a, b := attach(h), attach(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON(map[string]string{"command": "UP"}))

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			assert.JSONEq(t, `{"command":"UP"}`, string(msg.Data))
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("events", log.Discard())
	go h.Run(ctx)

	attach(h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	// queue capacity is 2; the third message overflows it
	for i := 0; i < 3; i++ {
		h.Broadcast(NewMessage([]byte(`{}`)))
	}
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestHub_Unregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := New("events", nil)
	go h.Run(ctx)

	c := attach(h)
	h.unregister <- c
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)

	_, open := <-c.send
	assert.False(t, open)
}

func TestHub_StopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("events", log.Discard())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := attach(h)
	cancel()
	<-stopped

	_, open := <-c.send
	assert.False(t, open)
	assert.Zero(t, h.ClientCount())
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("events", log.Discard())
	assert.Error(t, h.BroadcastJSON(func() {}))
}
