package secrets

import "context"

// Static resolves a fixed endpoint and API key, typically sourced from
// configuration with ${ENV} expansion.
type Static struct {
	endpoint string
	apiKey   string
}

var _ Provider = (*Static)(nil)

// NewStatic creates a Static provider. Missing values are reported by
// Resolve, not here, so a partially configured relay can still start and
// expose its diagnostics surface.
func NewStatic(endpoint, apiKey string) *Static {
	return &Static{endpoint: endpoint, apiKey: apiKey}
}

// Resolve returns the configured credential.
func (s *Static) Resolve(_ context.Context) (Credential, error) {
	if s.endpoint == "" {
		return Credential{}, ErrEndpointMissing
	}
	if s.apiKey == "" {
		return Credential{}, ErrKeyMissing
	}
	return Credential{
		Endpoint: s.endpoint,
		Header:   HeaderAPIKey,
		Value:    s.apiKey,
	}, nil
}

// Presence reports which fields are configured.
func (s *Static) Presence() Presence {
	return Presence{
		Endpoint: s.endpoint != "",
		Key:      s.apiKey != "",
	}
}
