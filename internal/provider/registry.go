package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a provider from its platform-specific JSON config.
// When skipValidation is true the live credential check is omitted (tests,
// offline listing of historic files).
type Factory func(config json.RawMessage, skipValidation bool) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a platform available under the given identifier. Concrete
// providers call it from init; adding a platform never touches the
// orchestrator. Registering the same identifier twice panics.
func Register(platform string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[platform]; dup {
		panic(fmt.Sprintf("provider: Register called twice for %q", platform))
	}
	registry[platform] = f
}

// New constructs a provider for the given platform identifier.
func New(platform string, config json.RawMessage, skipValidation bool) (Provider, error) {
	registryMu.RLock()
	f, ok := registry[platform]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown platform %q", ErrInvalidConfig, platform)
	}
	return f(config, skipValidation)
}

// Platforms lists the registered platform identifiers, sorted.
func Platforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
