package config

import "context"

// SecretProvider abstracts secret retrieval so the loader works against both
// AWS SSM Parameter Store (production) and environment variables (local).
type SecretProvider interface {
	// GetParametersBatch retrieves multiple secret values, batching
	// internally to respect provider API limits. Returns a map of
	// key -> plaintext value for all successfully resolved parameters.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
