package blob

import (
	"fmt"
	"slices"
	"sort"
)

// Constructor builds a Client from a validated Config.
type Constructor func(cfg *Config) (Client, error)

// Factory maps provider identifiers to constructors. It is passed explicitly
// to whoever needs to build clients; there is no package-level registry.
type Factory struct {
	constructors map[string]Constructor
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[string]Constructor)}
}

// DefaultFactory returns a factory with every built-in adapter registered.
// The memory provider creates an independent store per call.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.Register(ProviderS3, func(cfg *Config) (Client, error) { return NewS3Client(cfg) })
	f.Register(ProviderMinio, func(cfg *Config) (Client, error) { return NewMinioClient(cfg) })
	f.Register(ProviderHTTP, func(cfg *Config) (Client, error) { return NewHTTPClient(cfg) })
	f.Register(ProviderMemory, func(cfg *Config) (Client, error) { return NewMemoryClient(), nil })
	return f
}

// Register adds or replaces the constructor for provider.
func (f *Factory) Register(provider string, c Constructor) {
	f.constructors[provider] = c
}

// Providers lists the registered identifiers in sorted order.
func (f *Factory) Providers() []string {
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New validates cfg and builds the adapter for cfg.Provider. Unknown
// identifiers fail with ErrUnknownProvider.
func (f *Factory) New(cfg *Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownProvider, cfg.Provider, f.Providers())
	}
	return ctor(cfg)
}

// Supports reports whether provider is registered.
func (f *Factory) Supports(provider string) bool {
	return slices.Contains(f.Providers(), provider)
}
