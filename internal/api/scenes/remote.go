package scenes

import (
	"context"

	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/transport"
)

// Remote is the client side of the scene service.
type Remote struct {
	proxy *transport.Proxy
}

// NewRemote wraps a proxy already dialed to a scene service.
func NewRemote(p *transport.Proxy) *Remote {
	return &Remote{proxy: p}
}

// Address returns the service address.
func (r *Remote) Address() string { return r.proxy.Address() }

// CurrentScene returns the server's current scene, or nil when none is set.
func (r *Remote) CurrentScene(ctx context.Context) (models.Payload, error) {
	var out models.Payload
	err := r.proxy.Call(ctx, MethodCurrentScene, nil, &out)
	return out, err
}

// SetCurrentScene installs scene as current, storing it first when unknown.
func (r *Remote) SetCurrentScene(ctx context.Context, scene models.Payload) error {
	return r.proxy.Call(ctx, MethodSetCurrentScene, map[string]any{"scene": scene}, nil)
}

// RetrieveData returns the data object with id, or nil when absent.
func (r *Remote) RetrieveData(ctx context.Context, id string) (models.Payload, error) {
	var out models.Payload
	err := r.proxy.Call(ctx, MethodRetrieveData, idArgs{ID: id}, &out)
	return out, err
}

// AddData publishes a data object. It reports whether the object was stored;
// an existing object with the same id is kept.
func (r *Remote) AddData(ctx context.Context, p models.Payload) (bool, error) {
	var added bool
	err := r.proxy.Call(ctx, MethodAddData, map[string]any{"payload": p}, &added)
	return added, err
}

// HasData reports whether id is stored, or whether any data is stored when id
// is empty.
func (r *Remote) HasData(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.proxy.Call(ctx, MethodHasData, idArgs{ID: id}, &ok)
	return ok, err
}

// RetrieveScene returns the stored scene with id, or nil when absent.
func (r *Remote) RetrieveScene(ctx context.Context, id string) (models.Payload, error) {
	var out models.Payload
	err := r.proxy.Call(ctx, MethodRetrieveScene, idArgs{ID: id}, &out)
	return out, err
}

// AddScene stores scene and optionally makes it current.
func (r *Remote) AddScene(ctx context.Context, scene models.Payload, setCurrent bool) error {
	var ok bool
	return r.proxy.Call(ctx, MethodAddScene, map[string]any{"scene": scene, "set_current": setCurrent}, &ok)
}

// UpdateFocus replaces the focus of the current scene.
func (r *Remote) UpdateFocus(ctx context.Context, focus models.Payload) error {
	return r.proxy.Call(ctx, MethodUpdateFocus, map[string]any{"focus": focus}, nil)
}

// ListScenes returns the ids of all stored scenes.
func (r *Remote) ListScenes(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.proxy.Call(ctx, MethodListScenes, nil, &ids)
	return ids, err
}

// Close releases the underlying proxy.
func (r *Remote) Close() error {
	return r.proxy.Close()
}
