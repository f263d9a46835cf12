package client

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/payload"
	"github.com/Vasu1712/scenesync/internal/render"
	"github.com/Vasu1712/scenesync/internal/storage/memory"
)

type fakeRenderer struct {
	mu       sync.Mutex
	next     int
	opened   []string
	contents map[string]string
	added    int
	names    []string
	commands []string
	failing  map[string]int // command prefix -> failures left
	atoms    []render.Atom
	openErr  error
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{contents: make(map[string]string)}
}

func (f *fakeRenderer) OpenData(_ context.Context, location string) ([]*render.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.next++
	f.opened = append(f.opened, location)
	if b, err := os.ReadFile(location); err == nil {
		f.contents[location] = string(b)
	}
	return []*render.Model{{ID: strconv.Itoa(f.next), Location: location}}, nil
}

func (f *fakeRenderer) AddModels(ms []*render.Model) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added += len(ms)
	for _, m := range ms {
		f.names = append(f.names, m.Name)
	}
	return nil
}

func (f *fakeRenderer) RunCommand(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, left := range f.failing {
		if left > 0 && strings.HasPrefix(cmd, prefix) {
			f.failing[prefix] = left - 1
			return errors.New("renderer busy")
		}
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeRenderer) failNext(prefix string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing == nil {
		f.failing = make(map[string]int)
	}
	f.failing[prefix] = times
}

func (f *fakeRenderer) Atoms() []render.Atom {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atoms
}

func (f *fakeRenderer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened) + f.added + len(f.commands)
}

func (f *fakeRenderer) commandsSince(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands[n:]...)
}

// fakeScenes serves a local store as if it were remote.
type fakeScenes struct {
	store *memory.SceneStore

	mu      sync.Mutex
	err     error
	missing map[string]bool
	current int
	closed  int
}

func newFakeScenes() *fakeScenes {
	return &fakeScenes{store: memory.NewSceneStore(), missing: make(map[string]bool)}
}

func (f *fakeScenes) CurrentScene(context.Context) (models.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.store.CurrentScene()
	if !ok {
		return nil, nil
	}
	return s, nil
}

func (f *fakeScenes) RetrieveData(_ context.Context, id string) (models.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[id] {
		return nil, nil
	}
	d, _ := f.store.RetrieveData(id)
	return d, nil
}

func (f *fakeScenes) HasData(_ context.Context, id string) (bool, error) {
	return f.store.HasData(id), nil
}

func (f *fakeScenes) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeScenes) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeDialer struct {
	scenes *fakeScenes
	err    error
}

func (d fakeDialer) Dial(context.Context, string, string) (Scenes, string, error) {
	if d.err != nil {
		return nil, "", d.err
	}
	return d.scenes, "http://fake/rpc/scenes", nil
}

func modelData(id, path string) models.Payload {
	return models.Payload{"id": id, "object": models.KindModel, "source": models.Payload{"read_filepath": path}}
}

func sceneOf(id string, data ...models.Payload) models.Payload {
	list := make([]any, 0, len(data))
	for _, d := range data {
		list = append(list, d)
	}
	return models.Payload{"id": id, "object": models.KindScene, "data": list}
}

func connected(t *testing.T, opts Options) (*Engine, *fakeScenes, *fakeRenderer) {
	t.Helper()
	scenes := newFakeScenes()
	r := newFakeRenderer()
	e := NewEngine(fakeDialer{scenes: scenes}, r, opts)
	require.NoError(t, e.Connect(context.Background()))
	return e, scenes, r
}

func TestConnect(t *testing.T) {
	e, _, r := connected(t, Options{})
	assert.Equal(t, StateConnected, e.State())
	assert.Equal(t, "http://fake/rpc/scenes", e.Address())
	assert.Equal(t, initialEnvironment, r.commands)

	require.NoError(t, e.Connect(context.Background()), "connecting twice is a no-op")
	assert.Len(t, r.commands, 2)

	failing := NewEngine(fakeDialer{err: models.ErrNoServerFound}, newFakeRenderer(), Options{})
	err := failing.Connect(context.Background())
	assert.ErrorIs(t, err, models.ErrConnectionFailed)
	assert.ErrorIs(t, err, models.ErrNoServerFound)
	assert.Equal(t, StateDisconnected, failing.State())

	_, err = failing.Sync(context.Background())
	assert.ErrorIs(t, err, models.ErrConnectionFailed)
}

func TestSyncSkipsUnchangedScene(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	ctx := context.Background()
	_, err := scenes.store.AddScene(sceneOf("S1", modelData("D1", "/data/a.pdb")), true)
	require.NoError(t, err)

	res, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"D1"}, res.Loaded)
	assert.Equal(t, []string{"/data/a.pdb"}, r.opened)

	before := r.calls()
	res, err = e.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, res.Commands)
	assert.Equal(t, before, r.calls())
	assert.Equal(t, StateIdle, e.State())
}

func TestEndToEndFirstScene(t *testing.T) {
	e, scenes, r := connected(t, Options{UpdateFrequency: 1})
	ctx := context.Background()

	has, err := scenes.HasData(ctx, "")
	require.NoError(t, err)
	assert.False(t, has)

	attempted, err := e.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, attempted)
	assert.Empty(t, r.opened)
	_, ok := e.CurrentScene()
	assert.False(t, ok)

	_, err = scenes.store.AddScene(sceneOf("S1", modelData("D1", "/data/a.pdb")), true)
	require.NoError(t, err)

	_, err = e.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, r.opened, 1)
	assert.Equal(t, 1, r.added)

	cur, ok := e.CurrentScene()
	require.True(t, ok)
	assert.Equal(t, "S1", cur.ID())
}

func TestDataIsLoadedOnce(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	ctx := context.Background()

	_, err := scenes.store.AddScene(sceneOf("S1", modelData("D1", "/data/a.pdb")), true)
	require.NoError(t, err)
	_, err = e.Sync(ctx)
	require.NoError(t, err)

	_, err = scenes.store.AddScene(sceneOf("S2", modelData("D1", "/data/a.pdb").Stub(), modelData("D2", "/data/b.pdb")), true)
	require.NoError(t, err)
	res, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"D2"}, res.Loaded)
	assert.Equal(t, []string{"/data/a.pdb", "/data/b.pdb"}, r.opened)
}

func TestMissingDataIsSkipped(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	_, err := scenes.store.AddScene(sceneOf("S1", modelData("D1", "/data/a.pdb"), modelData("D2", "/data/b.pdb")), true)
	require.NoError(t, err)
	scenes.missing["D1"] = true

	res, err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"D1"}, res.Missing)
	assert.Equal(t, []string{"D2"}, res.Loaded)
	assert.Equal(t, []string{"/data/b.pdb"}, r.opened)
	cur, _ := e.CurrentScene()
	assert.Equal(t, "S1", cur.ID())
}

func TestThrottle(t *testing.T) {
	e, _, _ := connected(t, Options{UpdateFrequency: 3})

	var attempts []int
	for tick := 1; tick <= 10; tick++ {
		attempted, err := e.Tick(context.Background())
		require.NoError(t, err)
		if attempted {
			attempts = append(attempts, tick)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 6, 9}, attempts)
}

func TestFailureCeiling(t *testing.T) {
	e, scenes, _ := connected(t, Options{UpdateFrequency: 1, MaxFailures: 5})
	ctx := context.Background()
	boom := errors.New("server exploded")
	scenes.fail(boom)

	for i := 1; i < 5; i++ {
		attempted, err := e.Tick(ctx)
		assert.True(t, attempted)
		var serr *models.SyncError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, i, serr.Attempt)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, StateIdle, e.State())
	}

	_, err := e.Tick(ctx)
	assert.ErrorIs(t, err, models.ErrSyncCeilingReached)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateDisconnected, e.State())
	assert.Equal(t, 1, scenes.closed)

	for i := 0; i < 10; i++ {
		attempted, err := e.Tick(ctx)
		assert.False(t, attempted)
		assert.NoError(t, err)
	}
	assert.Equal(t, 5, scenes.current, "no sync attempts after the ceiling")
}

func TestFailuresResetOnSuccess(t *testing.T) {
	e, scenes, _ := connected(t, Options{UpdateFrequency: 1, MaxFailures: 3})
	ctx := context.Background()

	for round := 0; round < 3; round++ {
		scenes.fail(errors.New("flaky"))
		for i := 0; i < 2; i++ {
			_, err := e.Tick(ctx)
			assert.Error(t, err)
		}
		scenes.fail(nil)
		_, err := e.Tick(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, StateIdle, e.State())
}

func TestColorsStylesAndMapDefaults(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	mark := len(r.commands)

	m := modelData("M1", "/data/a.pdb")
	mp := models.Payload{"id": "V1", "object": models.KindMap, "source": models.Payload{"read_filepath": "/data/v.mrc"}}
	scene, err := payload.ComposeScene([]models.Payload{m, mp}, payload.SceneOptions{
		ID:          "S1",
		Styles:      []models.Payload{payload.Style("M1", "stick", "/A")},
		Environment: models.Payload{"background_color": "black"},
	})
	require.NoError(t, err)
	_, err = scenes.store.AddScene(scene, true)
	require.NoError(t, err)

	_, err = e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"volume #2 rmsLevel 2.5",
		"transparency #2 60",
		"color #1 #3465A4",
		"color #2 #B0B0B0",
		"style #1/A stick",
		"set bgColor black",
		"lighting full",
	}, r.commandsSince(mark))

	// a focus-only change re-applies nothing else
	mark = len(r.commands)
	_, err = scenes.store.UpdateFocus(models.Payload{"id": "M1", "selection": "/A:12"})
	require.NoError(t, err)
	res, err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"view #1/A:12"}, r.commandsSince(mark))
}

func TestFocusPoint(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	r.atoms = []render.Atom{
		{Coord: [3]float64{0, 0, 0}, ModelID: "1", Chain: "A", ResidueNumber: 1, Name: "N"},
		{Coord: [3]float64{10, 10, 10}, ModelID: "1", Chain: "B", ResidueNumber: 7, Name: "CA"},
	}
	_, err := scenes.store.AddScene(sceneOf("S1", modelData("D1", "/data/a.pdb")), true)
	require.NoError(t, err)
	_, err = e.Sync(context.Background())
	require.NoError(t, err)

	tests := []struct {
		expand string
		want   string
	}{
		{"", "sel #1/B:7"},
		{"residue", "sel #1/B:7"},
		{"chain", "sel #1/B"},
		{"model", "sel #1"},
		{"atom", "sel #1/B:7@CA"},
	}
	for _, tt := range tests {
		t.Run("expand "+tt.expand, func(t *testing.T) {
			mark := len(r.commands)
			focus := models.Payload{"xyz": []any{9.0, 9.5, 11.0}}
			if tt.expand != "" {
				focus["xyz_expand"] = tt.expand
			}
			_, err := scenes.store.UpdateFocus(focus)
			require.NoError(t, err)
			_, err = e.Sync(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want, "show sel", "color byhetero", "view sel"}, r.commandsSince(mark))
		})
	}
}

func TestInlineMaterialization(t *testing.T) {
	work := t.TempDir()
	e, scenes, r := connected(t, Options{WorkDir: work})

	m := payload.MustBuild(models.KindModel, payload.TextStructure{Text: "ATOM  model text", Suffix: ".pdb"}, models.Payload{"id": "M1"})
	mp := payload.MustBuild(models.KindMap, payload.Grid{
		Data:   []float32{1, 2, 3, 4, 5, 6, 7, 8},
		Dims:   [3]int{2, 2, 2},
		Pixels: [3]float64{1.5, 1.5, 1.5},
	}, models.Payload{"id": "V1"})
	docs, err := payload.Payloads(m, mp)
	require.NoError(t, err)
	scene, err := payload.ComposeScene(docs, payload.SceneOptions{ID: "S1"})
	require.NoError(t, err)
	_, err = scenes.store.AddScene(scene, true)
	require.NoError(t, err)

	res, err := e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"M1", "V1"}, res.Loaded)

	require.Len(t, r.opened, 2)
	assert.True(t, strings.HasSuffix(r.opened[0], ".pdb"))
	assert.Equal(t, "ATOM  model text", r.contents[r.opened[0]])
	assert.True(t, strings.HasSuffix(r.opened[1], ".mrc"))
	assert.Len(t, r.contents[r.opened[1]], 1024+8*4)

	left, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, left, "temporary files are removed")
}

func TestOpenFailureRemovesTempFile(t *testing.T) {
	work := t.TempDir()
	e, scenes, r := connected(t, Options{WorkDir: work})
	r.openErr = errors.New("renderer refused")

	m := models.Payload{"id": "M1", "object": models.KindModel, "source": models.Payload{
		"filestring": models.Payload{"string": "ATOM", "suffix": ".pdb"},
	}}
	_, err := scenes.store.AddScene(sceneOf("S1", m), true)
	require.NoError(t, err)

	_, err = e.Sync(context.Background())
	assert.ErrorIs(t, err, r.openErr)
	left, _ := os.ReadDir(work)
	assert.Empty(t, left)

	_, ok := e.CurrentScene()
	assert.False(t, ok, "a failed pass does not replace the cached scene")
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name string
		p    models.Payload
		want string
	}{
		{"file", modelData("a", "/x.pdb"), "/x.pdb"},
		{"url", models.Payload{"object": "model", "source": models.Payload{"read_url": "https://h/x.cif"}}, "https://h/x.cif"},
		{"pdb fetch", models.Payload{"object": "model", "source": models.Payload{"fetch": "1abc"}}, "pdb:1abc"},
		{"emdb fetch", models.Payload{"object": "map", "source": models.Payload{"fetch": "1234"}}, "emdb:1234"},
		{"qualified fetch", models.Payload{"object": "model", "source": models.Payload{"fetch": "alphafold:P12345"}}, "alphafold:P12345"},
		{"inline", models.Payload{"object": "model", "source": models.Payload{"filestring": models.Payload{"string": "x"}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, location(tt.p))
		})
	}
}

func TestRunAndDisconnect(t *testing.T) {
	e, scenes, _ := connected(t, Options{UpdateFrequency: 1})

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), FrameTicker{Interval: 5 * time.Millisecond}) }()

	require.Eventually(t, func() bool {
		scenes.mu.Lock()
		defer scenes.mu.Unlock()
		return scenes.current >= 3
	}, 2*time.Second, 5*time.Millisecond)

	e.Disconnect()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on Disconnect")
	}
	e.Disconnect()
	assert.Equal(t, StateDisconnected, e.State())
	assert.Equal(t, 1, scenes.closed)

	assert.ErrorIs(t, e.Run(context.Background(), FrameTicker{}), models.ErrConnectionFailed)
}

func TestRunStopsAtCeiling(t *testing.T) {
	e, scenes, _ := connected(t, Options{UpdateFrequency: 1, MaxFailures: 2})
	scenes.fail(errors.New("down"))

	err := e.Run(context.Background(), FrameTicker{Interval: time.Millisecond})
	assert.ErrorIs(t, err, models.ErrSyncCeilingReached)
	assert.Equal(t, StateDisconnected, e.State())
}

func TestFocusRetriedAfterFailure(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	ctx := context.Background()
	_, err := scenes.store.AddScene(sceneOf("S1", modelData("M1", "/data/a.pdb")), true)
	require.NoError(t, err)
	_, err = e.Sync(ctx)
	require.NoError(t, err)

	r.failNext("view", 1)
	_, err = scenes.store.UpdateFocus(models.Payload{"id": "M1", "selection": "/A:12"})
	require.NoError(t, err)

	mark := len(r.commandsSince(0))
	_, err = e.Sync(ctx)
	var serr *models.SyncError
	require.ErrorAs(t, err, &serr)

	res, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{"view #1/A:12"}, r.commandsSince(mark))

	res, err = e.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestFocusWaitsForItsTarget(t *testing.T) {
	e, scenes, r := connected(t, Options{})
	ctx := context.Background()
	m2 := models.Payload{"id": "M2", "object": models.KindModel, "source": models.Payload{"read_filepath": "/data/b.pdb"}}
	stored, err := scenes.store.AddData(m2)
	require.NoError(t, err)
	require.True(t, stored)

	first := sceneOf("S1", modelData("M1", "/data/a.pdb"))
	first["focus"] = models.Payload{"id": "M2"}
	_, err = scenes.store.AddScene(first, true)
	require.NoError(t, err)

	mark := len(r.commandsSince(0))
	_, err = e.Sync(ctx)
	require.NoError(t, err)
	assert.NotContains(t, r.commandsSince(mark), "view #2")

	second := sceneOf("S2", modelData("M1", "/data/a.pdb").Stub(), m2.Stub())
	second["focus"] = models.Payload{"id": "M2"}
	_, err = scenes.store.AddScene(second, true)
	require.NoError(t, err)

	mark = len(r.commandsSince(0))
	res, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"M2"}, res.Loaded)
	assert.Equal(t, []string{"view #2"}, r.commandsSince(mark))
}

func TestModelNamesFromPayload(t *testing.T) {
	work := t.TempDir()
	e, scenes, r := connected(t, Options{WorkDir: work})

	named := modelData("M1", "/data/a.pdb")
	named["name"] = "apo"
	inline := models.Payload{"id": "M2", "object": models.KindModel, "name": "ligand", "source": models.Payload{
		"filestring": models.Payload{"string": "ATOM", "suffix": ".pdb"},
	}}
	unnamed := modelData("M3", "/data/c.pdb")
	_, err := scenes.store.AddScene(sceneOf("S1", named, inline, unnamed), true)
	require.NoError(t, err)

	_, err = e.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"apo", "ligand", "M3"}, r.names)
}
