package client

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenesync/internal/api/scenes"
	"github.com/Vasu1712/scenesync/internal/bootstrap"
	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/registry"
	"github.com/Vasu1712/scenesync/internal/storage/memory"
	"github.com/Vasu1712/scenesync/internal/transport"
	"github.com/Vasu1712/scenesync/internal/ws"
)

func startServer(t *testing.T, ctx context.Context) (*bootstrap.Manager, *ws.Hub, *scenes.Remote) {
	t.Helper()
	hub := ws.NewHub()
	go hub.Run(ctx)
	handler := &scenes.SceneHandler{Store: memory.NewSceneStore(), Hub: hub, Topic: "scenes-e2e"}

	m := bootstrap.New(bootstrap.Options{
		Listen: "127.0.0.1:0",
		Mount: func(r *mux.Router, _ *transport.Daemon) {
			scenes.RegisterSceneRoutes(r, handler)
		},
	})
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { m.Close(context.Background()) })
	require.True(t, m.ServesNameServer())

	_, uri, err := m.RegisterService(ctx, handler.Topic, handler, "scenesync.test")
	require.NoError(t, err)
	proxy, err := transport.Dial(uri)
	require.NoError(t, err)
	t.Cleanup(func() { proxy.Close() })
	return m, hub, scenes.NewRemote(proxy)
}

func TestEngineAgainstServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, _, publisher := startServer(t, ctx)

	reg := registry.NewClient(registry.NewHTTPBackend(m.Address()))
	r := newFakeRenderer()
	e := NewEngine(RegistryDialer{Registry: reg}, r, Options{Prefix: "scenesync.test", UpdateFrequency: 1})
	require.NoError(t, e.Connect(ctx))
	defer e.Disconnect()
	assert.Equal(t, m.Address()+"/rpc/scenes-e2e", e.Address())

	res, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	require.NoError(t, publisher.AddScene(ctx, sceneOf("S1", modelData("D1", "/data/a.pdb")), true))
	res, err = e.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "S1", res.SceneID)
	assert.Equal(t, []string{"/data/a.pdb"}, r.opened)

	require.NoError(t, publisher.UpdateFocus(ctx, models.Payload{"id": "D1"}))
	mark := len(r.commandsSince(0))
	res, err = e.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"view #1"}, r.commandsSince(mark))
	assert.Len(t, r.opened, 1)
}

func TestEngineFollowsFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, hub, publisher := startServer(t, ctx)

	reg := registry.NewClient(registry.NewHTTPBackend(m.Address()))
	r := newFakeRenderer()
	e := NewEngine(RegistryDialer{Registry: reg}, r, Options{Prefix: "scenesync.test", UpdateFrequency: 1})
	require.NoError(t, e.Connect(ctx))

	listener, err := ws.NewListener(e.Address())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, listener) }()

	require.Eventually(t, func() bool {
		return hub.ActiveCount("scenes-e2e") == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, publisher.AddScene(ctx, sceneOf("S1", modelData("D1", "/data/a.pdb")), true))
	require.Eventually(t, func() bool {
		cur, ok := e.CurrentScene()
		return ok && cur.ID() == "S1"
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	e.Disconnect()
}
