package agent

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Config carries the transport settings a provider factory needs.
type Config struct {
	// URL is the transport address, e.g. a NATS server URL.
	URL string

	// SubjectPrefix namespaces the provider's subjects, e.g. "codeloom.agents".
	SubjectPrefix string

	// RequestTimeout bounds a single provider invocation. Providers are
	// long-running; callers should size this in minutes, not seconds.
	RequestTimeout time.Duration
}

// Factory constructs a provider from transport config.
type Factory func(cfg Config) (Provider, error)

// providerRegistry holds registered provider factories.
var (
	providerRegistry = make(map[string]Factory)
	providerMu       sync.RWMutex
)

// Register adds a provider factory to the registry. Typically called from a
// provider's init.
func Register(name string, factory Factory) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[name] = factory
}

// New constructs a named provider.
func New(name string, cfg Config) (Provider, error) {
	providerMu.RLock()
	factory, ok := providerRegistry[name]
	providerMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown agent provider %q (registered: %v)", name, List())
	}
	return factory(cfg)
}

// List returns all registered provider names, sorted.
func List() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
