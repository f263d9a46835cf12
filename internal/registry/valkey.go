package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/valkey-io/valkey-go"
	"golang.org/x/exp/slices"
)

// DefaultValkeyKey is the hash holding name -> address.
const DefaultValkeyKey = "scenesync:services"

// ValkeyBackend publishes services in a Valkey hash so that servers and
// clients on different hosts share one registry. Entries list in name order.
type ValkeyBackend struct {
	client valkey.Client
	key    string
}

// DialValkey connects to the Valkey server at addr.
func DialValkey(addr, key string) (*ValkeyBackend, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("valkey %s: %w", addr, err)
	}
	return NewValkeyBackend(client, key), nil
}

// NewValkeyBackend uses an existing client. An empty key selects
// DefaultValkeyKey.
func NewValkeyBackend(client valkey.Client, key string) *ValkeyBackend {
	if key == "" {
		key = DefaultValkeyKey
	}
	return &ValkeyBackend{client: client, key: key}
}

func (v *ValkeyBackend) Register(ctx context.Context, name, address string) error {
	cmd := v.client.B().Hset().Key(v.key).FieldValue().FieldValue(name, address).Build()
	return v.client.Do(ctx, cmd).Error()
}

func (v *ValkeyBackend) Unregister(ctx context.Context, name string) error {
	cmd := v.client.B().Hdel().Key(v.key).Field(name).Build()
	return v.client.Do(ctx, cmd).Error()
}

func (v *ValkeyBackend) List(ctx context.Context, prefix string) ([]Entry, error) {
	all, err := v.client.Do(ctx, v.client.B().Hgetall().Key(v.key).Build()).AsStrMap()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for name, address := range all {
		if strings.HasPrefix(name, prefix) {
			out = append(out, Entry{Name: name, Address: address})
		}
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Close releases the Valkey connection.
func (v *ValkeyBackend) Close() {
	v.client.Close()
}
