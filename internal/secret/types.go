// Package secret resolves sensitive configuration values, most importantly
// the vault encryption key, from pluggable providers. References use the
// ${type:name} form, e.g. ${env:BRIDGED_ENCRYPTION_KEY} or
// ${keyring:encryption-key}.
package secret

import "context"

// Ref is a reference to a secret held by a provider.
type Ref struct {
	Type     string // env or keyring
	Name     string // environment variable name or keyring alias
	Original string // original reference string
}

// Provider resolves secrets of a particular type.
type Provider interface {
	// CanResolve reports whether this provider handles the given secret type.
	CanResolve(secretType string) bool

	// Resolve retrieves the actual secret value.
	Resolve(ctx context.Context, ref Ref) (string, error)

	// Store saves a secret, if the provider supports writes.
	Store(ctx context.Context, ref Ref, value string) error

	// Delete removes a secret, if the provider supports writes.
	Delete(ctx context.Context, ref Ref) error

	// IsAvailable reports whether the provider works on this system.
	IsAvailable() bool
}
