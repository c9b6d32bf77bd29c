package ports

import (
	"context"

	"capi-relay/internal/config"
)

// PolicyLoader loads normalizer policies from a remote configuration store.
type PolicyLoader interface {
	// LoadPolicy loads the policy stored under a profile name.
	LoadPolicy(ctx context.Context, profile string) (*config.Policy, error)
}

// SecretsProvider resolves upstream credentials.
type SecretsProvider interface {
	// GetGraphSecret fetches Conversions API credentials by secret name.
	GetGraphSecret(ctx context.Context, secretName string) (*config.GraphSecret, error)
}
