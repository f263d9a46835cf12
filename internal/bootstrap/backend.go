package bootstrap

import (
	"fmt"

	"github.com/Vasu1712/scenesync/internal/config"
	"github.com/Vasu1712/scenesync/internal/registry"
)

// ServerBackend returns the backend a server should register into, or nil
// to locate (or serve) the configured name server.
func ServerBackend(cfg config.RegistryConfig) (registry.Backend, error) {
	switch cfg.Backend {
	case "valkey":
		return registry.DialValkey(cfg.ValkeyAddr, cfg.ValkeyKey)
	case "http", "memory":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
}

// ClientBackend returns the backend a client discovers services in. The
// memory backend is process local, so clients fall back to the name server.
func ClientBackend(cfg config.RegistryConfig) (registry.Backend, error) {
	switch cfg.Backend {
	case "valkey":
		return registry.DialValkey(cfg.ValkeyAddr, cfg.ValkeyKey)
	case "http", "memory":
		return registry.NewHTTPBackend(cfg.NameServer), nil
	}
	return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
}
