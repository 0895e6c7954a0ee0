package secrets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OAuth resolves an endpoint plus a bearer token obtained through the
// OAuth 2.0 client-credentials flow. The underlying token source caches
// tokens and refreshes them before expiry.
type OAuth struct {
	endpoint string
	source   oauth2.TokenSource
	hasCreds bool
}

var _ Provider = (*OAuth)(nil)

// OAuthConfig configures the client-credentials flow.
type OAuthConfig struct {
	Endpoint     string `yaml:"endpoint" toml:"endpoint"`
	TokenURL     string `yaml:"token_url" toml:"token_url"`
	ClientID     string `yaml:"client_id" toml:"client_id"`
	ClientSecret string `yaml:"client_secret" toml:"client_secret"`
	Scope        string `yaml:"scope" toml:"scope"`
}

// NewOAuth creates an OAuth provider. The token source is reused across
// calls, so tokens are fetched once per expiry window rather than per
// request.
func NewOAuth(cfg OAuthConfig) *OAuth {
	hasCreds := cfg.TokenURL != "" && cfg.ClientID != "" && cfg.ClientSecret != ""

	var source oauth2.TokenSource
	if hasCreds {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		if cfg.Scope != "" {
			cc.Scopes = []string{cfg.Scope}
		}
		source = cc.TokenSource(context.Background())
	}

	return &OAuth{
		endpoint: cfg.Endpoint,
		source:   source,
		hasCreds: hasCreds,
	}
}

// Resolve fetches (or reuses) a bearer token for the upstream endpoint.
func (o *OAuth) Resolve(_ context.Context) (Credential, error) {
	if o.endpoint == "" {
		return Credential{}, ErrEndpointMissing
	}
	if !o.hasCreds {
		return Credential{}, ErrKeyMissing
	}

	token, err := o.source.Token()
	if err != nil {
		return Credential{}, fmt.Errorf("secrets: token fetch failed: %w", err)
	}

	return Credential{
		Endpoint: o.endpoint,
		Header:   HeaderAuthorization,
		Value:    "Bearer " + token.AccessToken,
	}, nil
}

// Presence reports which fields are configured.
func (o *OAuth) Presence() Presence {
	return Presence{
		Endpoint: o.endpoint != "",
		Key:      o.hasCreds,
	}
}
