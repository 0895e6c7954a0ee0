package di

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/config"
	"github.com/omarluq/aoai-relay/internal/secrets"
)

// SecretsService wraps the upstream credential provider.
type SecretsService struct {
	Provider secrets.Provider
}

// NewSecrets creates the credential provider selected by the secrets mode.
func NewSecrets(i do.Injector) (*SecretsService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	sc := cfgSvc.Get().Secrets

	var provider secrets.Provider
	switch sc.GetEffectiveMode() {
	case config.SecretModeStatic:
		provider = secrets.NewStatic(sc.Endpoint, sc.APIKey)
	case config.SecretModeOAuth:
		provider = secrets.NewOAuth(secrets.OAuthConfig{
			Endpoint:     sc.Endpoint,
			TokenURL:     sc.OAuth.TokenURL,
			ClientID:     sc.OAuth.ClientID,
			ClientSecret: sc.OAuth.ClientSecret,
			Scope:        sc.OAuth.Scope,
		})
	default:
		return nil, fmt.Errorf("unknown secrets mode %q", sc.Mode)
	}

	return &SecretsService{Provider: provider}, nil
}
