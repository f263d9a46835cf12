package client

import (
	"context"

	"github.com/Vasu1712/scenesync/internal/api/scenes"
	"github.com/Vasu1712/scenesync/internal/models"
	"github.com/Vasu1712/scenesync/internal/registry"
)

// Scenes is the part of the remote scene service the engine reads.
type Scenes interface {
	CurrentScene(ctx context.Context) (models.Payload, error)
	RetrieveData(ctx context.Context, id string) (models.Payload, error)
	HasData(ctx context.Context, id string) (bool, error)
	Close() error
}

// Dialer connects to a scene service, by exact address when uri is set and
// by name prefix otherwise. It returns the service and its address.
type Dialer interface {
	Dial(ctx context.Context, uri, prefix string) (Scenes, string, error)
}

// RegistryDialer resolves services through a registry client.
type RegistryDialer struct {
	Registry   *registry.Client
	FirstMatch bool
}

func (d RegistryDialer) Dial(ctx context.Context, uri, prefix string) (Scenes, string, error) {
	res, err := d.Registry.Resolve(ctx, registry.ResolveOptions{URI: uri, Prefix: prefix, FirstMatch: d.FirstMatch})
	if err != nil {
		return nil, "", err
	}
	return scenes.NewRemote(res.Handle), res.Address, nil
}
