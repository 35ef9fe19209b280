package secret

import (
	"context"
	"fmt"
)

// Resolver resolves secret references using registered providers.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver creates a resolver with the default env and keyring providers.
func NewResolver() *Resolver {
	r := &Resolver{providers: make(map[string]Provider)}
	r.RegisterProvider(SecretTypeEnv, NewEnvProvider())
	r.RegisterProvider(SecretTypeKeyring, NewKeyringProvider())
	return r
}

// RegisterProvider registers a provider for a secret type.
func (r *Resolver) RegisterProvider(secretType string, provider Provider) {
	r.providers[secretType] = provider
}

// Resolve resolves a single secret reference.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (string, error) {
	provider, exists := r.providers[ref.Type]
	if !exists {
		return "", fmt.Errorf("no provider for secret type: %s", ref.Type)
	}

	if !provider.IsAvailable() {
		return "", fmt.Errorf("provider for %s is not available on this system", ref.Type)
	}

	return provider.Resolve(ctx, ref)
}

// ResolveString resolves input if it is a ${type:name} reference, otherwise
// returns it unchanged. Plain values are allowed so the encryption key can be
// given literally in development setups.
func (r *Resolver) ResolveString(ctx context.Context, input string) (string, error) {
	if !IsRef(input) {
		return input, nil
	}

	ref, err := ParseRef(input)
	if err != nil {
		return "", err
	}

	value, err := r.Resolve(ctx, *ref)
	if err != nil {
		return "", fmt.Errorf("failed to resolve secret %s: %w", ref.Original, err)
	}

	return value, nil
}

// Store stores a secret using the provider for its type.
func (r *Resolver) Store(ctx context.Context, ref Ref, value string) error {
	provider, exists := r.providers[ref.Type]
	if !exists {
		return fmt.Errorf("no provider for secret type: %s", ref.Type)
	}

	if !provider.IsAvailable() {
		return fmt.Errorf("provider for %s is not available on this system", ref.Type)
	}

	return provider.Store(ctx, ref, value)
}

// MaskValue masks a secret value for safe display in logs and command output.
func MaskValue(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "***" + value[len(value)-4:]
}
