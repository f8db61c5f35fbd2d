package cache

import (
	"fmt"
	"strings"
)

const (
	BackendMemory = "memory"
	BackendValkey = "valkey"
)

// New builds the provider named by backend. A disabled cache yields NoopProvider.
func New(enabled bool, backend string, maxEntries int, valkey ValkeyConfig) (Provider, error) {
	if !enabled {
		return NoopProvider{}, nil
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryProvider(maxEntries), nil
	case BackendValkey, "redis":
		return NewValkeyProvider(valkey)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
