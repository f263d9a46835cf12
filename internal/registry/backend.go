// Package registry discovers scene services by name prefix and resolves a
// connection to one of them.
//
// Services are published as (name, address) entries in a Backend. Names end
// in a dotted numeric timestamp (for example "scenesync.server.1718000000123")
// which Resolve uses to pick the most recently published service when no
// explicit address is given. Backends exist for an in-process table, a remote
// HTTP name server and a Valkey hash shared between hosts.
package registry

import (
	"context"
	"strings"
	"sync"
)

// Entry is one published service.
type Entry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Backend stores published services.
type Backend interface {
	Register(ctx context.Context, name, address string) error
	Unregister(ctx context.Context, name string) error
	// List returns every entry whose name starts with prefix, in the
	// backend's stable order.
	List(ctx context.Context, prefix string) ([]Entry, error)
}

// MemoryBackend keeps entries in registration order.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Register adds or replaces name. A replaced entry keeps its position.
func (m *MemoryBackend) Register(_ context.Context, name, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].Name == name {
			m.entries[i].Address = address
			return nil
		}
	}
	m.entries = append(m.entries, Entry{Name: name, Address: address})
	return nil
}

func (m *MemoryBackend) Unregister(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].Name == name {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MemoryBackend) List(_ context.Context, prefix string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if strings.HasPrefix(e.Name, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}
