package models

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/secrets"
)

// providerEntry holds a lazily-initialized model instance.
// Only successful initializations are kept, so a credential added after
// startup is picked up by the next request.
type providerEntry struct {
	cfg   config.ProviderConfig
	mu    sync.Mutex
	model model.BaseChatModel
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	keyring *secrets.Keyring

	mu          sync.RWMutex
	providers   map[string]*providerEntry
	defaultName string
}

// NewRegistry creates a model registry from config. Encrypted credentials
// are revealed with keyring; a nil keyring rejects them.
func NewRegistry(cfg config.ModelsConfig, keyring *secrets.Keyring) *Registry {
	r := &Registry{keyring: keyring}
	r.Reset(cfg)
	return r
}

// Reset replaces every provider with the ones in cfg, dropping cached models.
func (r *Registry) Reset(cfg config.ModelsConfig) {
	providers := make(map[string]*providerEntry, len(cfg.Providers))
	for name, provCfg := range cfg.Providers {
		providers[name] = &providerEntry{cfg: provCfg}
	}

	r.mu.Lock()
	r.providers = providers
	r.defaultName = cfg.Default
	r.mu.Unlock()

	slog.Debug("model registry reset", "providers", len(providers), "default", cfg.Default)
}

// Get returns the named model, initializing it on first use. An empty name
// selects the default provider.
func (r *Registry) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	r.mu.RLock()
	if name == "" {
		name = r.defaultName
	}
	entry, ok := r.providers[name]
	r.mu.RUnlock()

	if name == "" {
		return nil, fmt.Errorf("no default model configured")
	}
	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.model != nil {
		return entry.model, nil
	}

	m, err := CreateModel(ctx, entry.cfg, r.keyring)
	if err != nil {
		return nil, err
	}
	entry.model = m
	slog.Info("model initialized", "provider", name, "driver", entry.cfg.Driver, "model", entry.cfg.Model)
	return m, nil
}

// Default returns the default model.
func (r *Registry) Default(ctx context.Context) (model.BaseChatModel, error) {
	return r.Get(ctx, "")
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config returns the provider config for name.
func (r *Registry) Config(name string) (config.ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	entry, ok := r.providers[name]
	if !ok {
		return config.ProviderConfig{}, false
	}
	return entry.cfg, true
}
