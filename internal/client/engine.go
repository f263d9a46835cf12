// Package client is the sync engine of a visualization client. It follows the
// current scene of a remote scene service and drives a renderer so that the
// rendered state matches it: data objects are opened once, colors, styles,
// environment and focus are applied as they change.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/render"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSyncing
	StateIdle
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateSyncing:
		return "SYNCING"
	case StateIdle:
		return "IDLE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configures an Engine. Zero values take the defaults.
type Options struct {
	// URI selects the service by exact address, skipping prefix discovery.
	URI    string
	Prefix string
	// Debug logs every sync pass regardless of -v.
	Debug bool
	// UpdateFrequency throttles syncs to every Nth tick after an initial
	// burst of N.
	UpdateFrequency int
	MaxFailures     int
	CallTimeout     time.Duration
	// WorkDir holds temporary files handed to the renderer.
	WorkDir string
}

func (o *Options) setDefaults() {
	if o.UpdateFrequency <= 0 {
		o.UpdateFrequency = 10
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = 5
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 2 * time.Second
	}
}

// SyncResult describes one sync pass.
type SyncResult struct {
	Changed  bool
	SceneID  string
	Revision uint64
	Loaded   []string // data ids opened in this pass
	Missing  []string // data ids the server no longer has
	Commands int      // renderer commands issued
}

type sceneKey struct {
	id          string
	revision    uint64
	fingerprint string
}

func keyOf(scene models.Payload) sceneKey {
	k := sceneKey{id: scene.ID(), revision: models.AsScene(scene).Revision()}
	if k.revision == 0 {
		k.fingerprint = models.Fingerprint(scene)
	}
	return k
}

// Engine is one client session. Sync attempts never overlap.
type Engine struct {
	dialer   Dialer
	renderer render.Renderer
	opts     Options

	state atomic.Int32

	mu       sync.Mutex
	remote   Scenes
	address  string
	elapsed  int
	failures int
	stopRun  context.CancelFunc

	cached    models.Payload
	cachedKey sceneKey
	applied   appliedState
	atoms     *atomIndex // nil until a focus point needs it
}

func NewEngine(dialer Dialer, renderer render.Renderer, opts Options) *Engine {
	opts.setDefaults()
	e := &Engine{dialer: dialer, renderer: renderer, opts: opts}
	e.applied.reset()
	return e
}

func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) { e.state.Store(int32(s)) }

// Address returns the connected service address, empty when disconnected.
func (e *Engine) Address() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.address
}

// CurrentScene returns a copy of the last applied scene.
func (e *Engine) CurrentScene() (models.Payload, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cached == nil {
		return nil, false
	}
	return e.cached.Clone(), true
}

// Connect resolves and connects to the scene service. It is a no-op when
// already connected.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote != nil {
		return nil
	}
	e.setState(StateConnecting)
	remote, address, err := e.dialer.Dial(ctx, e.opts.URI, e.opts.Prefix)
	if err != nil {
		e.setState(StateDisconnected)
		if errors.Is(err, models.ErrConnectionFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrConnectionFailed, err)
	}
	e.remote = remote
	e.address = address
	e.elapsed = 0
	e.failures = 0
	e.setState(StateConnected)
	glog.Infof("[sync] connected to %s", address)

	for _, cmd := range initialEnvironment {
		if err := e.renderer.RunCommand(cmd); err != nil {
			glog.Warningf("[sync] %s: %v", cmd, err)
		}
	}
	if e.opts.Debug {
		cctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
		has, err := remote.HasData(cctx, "")
		cancel()
		glog.Infof("[sync] server has data: %v (err=%v)", has, err)
	}
	return nil
}

// Tick advances the tick counter and syncs when the throttle and the failure
// ceiling allow. It reports whether a sync was attempted. Errors are the
// failed attempt's SyncError, or ErrSyncCeilingReached once the session has
// been torn down.
func (e *Engine) Tick(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return false, nil
	}
	e.elapsed++
	freq := e.opts.UpdateFrequency
	if !(e.elapsed < freq || e.elapsed%freq == 0) || e.failures >= e.opts.MaxFailures {
		return false, nil
	}
	_, err := e.attemptLocked(ctx)
	return true, err
}

// Sync runs one sync pass now, bypassing the throttle. Failures count toward
// the ceiling as they do from Tick.
func (e *Engine) Sync(ctx context.Context) (SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.remote == nil {
		return SyncResult{}, fmt.Errorf("%w: not connected", models.ErrConnectionFailed)
	}
	return e.attemptLocked(ctx)
}

func (e *Engine) attemptLocked(ctx context.Context) (SyncResult, error) {
	e.setState(StateSyncing)
	res, err := e.syncLocked(ctx)
	if err == nil {
		e.failures = 0
		e.setState(StateIdle)
		e.logResult(res)
		return res, nil
	}

	e.failures++
	serr := &models.SyncError{Attempt: e.failures, Err: err}
	if e.failures < e.opts.MaxFailures {
		glog.Warningf("[sync] %v", serr)
		e.setState(StateIdle)
		return res, serr
	}

	glog.Warningf("[sync] %v; giving up after %d consecutive failures", serr, e.failures)
	e.setState(StateFailed)
	e.teardownLocked()
	return res, fmt.Errorf("%w: %w", models.ErrSyncCeilingReached, serr)
}

func (e *Engine) logResult(res SyncResult) {
	if !res.Changed {
		return
	}
	const format = "[sync] scene %s rev %d: loaded %v, missing %v, %d commands"
	if e.opts.Debug {
		glog.Infof(format, res.SceneID, res.Revision, res.Loaded, res.Missing, res.Commands)
		return
	}
	glog.V(1).Infof(format, res.SceneID, res.Revision, res.Loaded, res.Missing, res.Commands)
}

// Run drives Tick from src until ctx is done, the source closes, the
// session is disconnected or the failure ceiling is reached.
func (e *Engine) Run(ctx context.Context, src TickSource) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.remote == nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: not connected", models.ErrConnectionFailed)
	}
	e.stopRun = cancel
	e.mu.Unlock()

	ticks, err := src.Ticks(runCtx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-runCtx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			if _, err := e.Tick(runCtx); errors.Is(err, models.ErrSyncCeilingReached) {
				return err
			}
		}
	}
}

// Disconnect stops Run and releases the remote handle. Safe to call more
// than once.
func (e *Engine) Disconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	if e.stopRun != nil {
		e.stopRun()
		e.stopRun = nil
	}
	if e.remote != nil {
		if err := e.remote.Close(); err != nil {
			glog.V(1).Infof("[sync] closing %s: %v", e.address, err)
		}
		glog.Infof("[sync] disconnected from %s", e.address)
		e.remote = nil
		e.address = ""
	}
	e.setState(StateDisconnected)
}

func (e *Engine) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opts.CallTimeout)
}

func (e *Engine) syncLocked(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	cctx, cancel := e.call(ctx)
	scene, err := e.remote.CurrentScene(cctx)
	cancel()
	if err != nil {
		return res, fmt.Errorf("current scene: %w", err)
	}
	if scene == nil {
		return res, nil
	}
	key := keyOf(scene)
	res.SceneID, res.Revision = key.id, key.revision
	if e.cached != nil && key == e.cachedKey {
		return res, nil
	}
	res.Changed = true

	run := func(cmd string) error {
		res.Commands++
		if e.opts.Debug {
			glog.Infof("[sync] > %s", cmd)
		}
		return e.renderer.RunCommand(cmd)
	}

	sc := models.AsScene(scene)
	for _, ref := range sc.Data() {
		id := ref.ID()
		if _, ok := e.applied.models[id]; ok {
			continue
		}
		cctx, cancel := e.call(ctx)
		full, err := e.remote.RetrieveData(cctx, id)
		cancel()
		if err != nil {
			return res, fmt.Errorf("retrieve %s: %w", id, err)
		}
		if full == nil {
			glog.Warningf("[sync] %v: %s", models.ErrMissingData, id)
			res.Missing = append(res.Missing, id)
			continue
		}
		name := full.String("name")
		if name == "" {
			name = id
		}
		glog.Infof("[sync] loading %s %s (%s)", full.Kind(), name, id)
		opened, err := e.open(ctx, full)
		if err != nil {
			return res, fmt.Errorf("open %s: %w", id, err)
		}
		for _, m := range opened {
			m.Name = name
		}
		if err := e.renderer.AddModels(opened); err != nil {
			return res, fmt.Errorf("add %s: %w", id, err)
		}
		res.Commands++
		e.applied.models[id] = opened
		e.atoms = nil
		res.Loaded = append(res.Loaded, id)

		if full.Kind() == models.KindMap {
			for _, m := range opened {
				for _, cmd := range mapDefaults(m) {
					if err := run(cmd); err != nil {
						return res, err
					}
				}
			}
		}
	}

	if err := e.applyLocked(sc, run); err != nil {
		return res, err
	}

	e.cached = scene
	e.cachedKey = key
	return res, nil
}
