package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub()
	go h.Run(ctx)
	return h, cancel
}

func TestHubNotify(t *testing.T) {
	h, _ := runHub(t)
	a := &Client{Topic: "svc-a", Send: make(chan []byte, 4)}
	b := &Client{Topic: "svc-b", Send: make(chan []byte, 4)}
	require.True(t, h.Subscribe(a))
	require.True(t, h.Subscribe(b))
	require.Eventually(t, func() bool { return h.ActiveCount("svc-a") == 1 }, time.Second, 5*time.Millisecond)

	h.Notify("svc-a", SceneEvent{SceneID: "S1", Revision: 3})

	select {
	case data := <-a.Send:
		var ev SceneEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, SceneEvent{SceneID: "S1", Revision: 3}, ev)
	case <-time.After(time.Second):
		t.Fatal("no event for svc-a")
	}
	assert.Empty(t, b.Send)

	h.Unsubscribe(a)
	require.Eventually(t, func() bool { return h.ActiveCount("svc-a") == 0 }, time.Second, 5*time.Millisecond)
	_, ok := <-a.Send
	assert.False(t, ok, "unsubscribing closes the queue")
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	h, _ := runHub(t)
	c := &Client{Topic: "svc", Send: make(chan []byte)}
	require.True(t, h.Subscribe(c))

	h.Notify("svc", SceneEvent{SceneID: "S1", Revision: 1})
	require.Eventually(t, func() bool { return h.ActiveCount("svc") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubStop(t *testing.T) {
	h, stop := runHub(t)
	c := &Client{Topic: "svc", Send: make(chan []byte, 1)}
	require.True(t, h.Subscribe(c))

	stop()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, ok := <-c.Send
	assert.False(t, ok, "stopping closes every queue")

	returned := make(chan bool, 1)
	go func() {
		h.Unsubscribe(c)
		returned <- h.Subscribe(&Client{Topic: "svc", Send: make(chan []byte)})
	}()
	select {
	case subscribed := <-returned:
		assert.False(t, subscribed)
	case <-time.After(time.Second):
		t.Fatal("hub calls block after stop")
	}
}
