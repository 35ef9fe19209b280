package secret

import (
	"context"
	"fmt"
	"os"
)

// SecretTypeEnv identifies the environment variable provider.
const SecretTypeEnv = "env"

// EnvProvider resolves secrets from environment variables.
type EnvProvider struct{}

// NewEnvProvider creates a new environment variable provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

// CanResolve reports whether this provider handles the given secret type.
func (p *EnvProvider) CanResolve(secretType string) bool {
	return secretType == SecretTypeEnv
}

// Resolve retrieves the secret value from the environment.
func (p *EnvProvider) Resolve(_ context.Context, ref Ref) (string, error) {
	if !p.CanResolve(ref.Type) {
		return "", fmt.Errorf("env provider cannot resolve secret type: %s", ref.Type)
	}

	value := os.Getenv(ref.Name)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not found or empty", ref.Name)
	}

	return value, nil
}

// Store is not supported for environment variables.
func (p *EnvProvider) Store(_ context.Context, _ Ref, _ string) error {
	return fmt.Errorf("env provider does not support storing secrets")
}

// Delete is not supported for environment variables.
func (p *EnvProvider) Delete(_ context.Context, _ Ref) error {
	return fmt.Errorf("env provider does not support deleting secrets")
}

// IsAvailable reports whether the provider works on this system.
// The environment is always available.
func (p *EnvProvider) IsAvailable() bool {
	return true
}
