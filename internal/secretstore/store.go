// Package secretstore resolves registry credential secrets by name or ARN through
// configurable providers (AWS Secrets Manager, Vault, local files).
package secretstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Provider resolves a secret identifier to its string value.
type Provider interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Options customize store construction.
type Options struct {
	// BaseDir anchors relative file provider paths.
	BaseDir string
	// Providers registers ready-made providers, overriding configured ones by name.
	Providers map[string]Provider
}

// Store routes secret lookups to providers.
type Store struct {
	providers       map[string]Provider
	defaultProvider string
}

// New builds a Store from cfg. A Secrets Manager provider is always available
// under DefaultProviderName unless the config or opts replace it.
func New(ctx context.Context, cfg Config, opts Options) (*Store, error) {
	providers := make(map[string]Provider, len(cfg.Providers)+1)
	for name, pcfg := range cfg.Providers {
		providerName := strings.TrimSpace(name)
		if providerName == "" {
			return nil, fmt.Errorf("secret provider name cannot be empty")
		}
		if _, ok := opts.Providers[providerName]; ok {
			continue
		}
		provider, err := newProvider(ctx, pcfg, opts.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", providerName, err)
		}
		providers[providerName] = provider
	}
	for name, provider := range opts.Providers {
		providers[name] = provider
	}
	if _, ok := providers[DefaultProviderName]; !ok {
		provider, err := newSecretsManagerProvider(ctx, ProviderConfig{Type: TypeSecretsManager})
		if err != nil {
			return nil, err
		}
		providers[DefaultProviderName] = provider
	}
	defaultProvider := strings.TrimSpace(cfg.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = DefaultProviderName
	}
	if _, ok := providers[defaultProvider]; !ok {
		return nil, fmt.Errorf("default secret provider %q is not configured", defaultProvider)
	}
	return &Store{providers: providers, defaultProvider: defaultProvider}, nil
}

func newProvider(ctx context.Context, cfg ProviderConfig, baseDir string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeSecretsManager:
		return newSecretsManagerProvider(ctx, cfg)
	case TypeVault:
		return newVaultProvider(cfg)
	case TypeFile:
		return newFileProvider(cfg.Path, baseDir)
	case "":
		return nil, fmt.Errorf("missing type")
	default:
		return nil, fmt.Errorf("unsupported type %q", cfg.Type)
	}
}

// Resolve looks id up. ARNs go to the Secrets Manager provider; names go to the
// default provider.
func (s *Store) Resolve(ctx context.Context, id string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("secret store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("secret identifier is required")
	}
	name := s.defaultProvider
	if strings.HasPrefix(id, "arn:aws") {
		name = DefaultProviderName
	}
	provider, ok := s.providers[name]
	if !ok {
		return "", fmt.Errorf("secret provider %q is not configured", name)
	}
	return provider.Resolve(ctx, id)
}

// DefaultProvider returns the provider used for secret names.
func (s *Store) DefaultProvider() string {
	return s.defaultProvider
}

// ProviderNames lists configured provider names.
func (s *Store) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
