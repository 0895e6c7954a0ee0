package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/config"
	"github.com/omarluq/aoai-relay/internal/upstream"
)

// UpstreamService wraps the retrying upstream client.
type UpstreamService struct {
	Client *upstream.Client
}

// NewUpstream creates the upstream client from the retry and breaker
// configuration.
func NewUpstream(i do.Injector) (*UpstreamService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	secretsSvc := do.MustInvoke[*SecretsService](i)

	client := upstream.New(secretsSvc.Provider, clientConfig(&cfgSvc.Get().Upstream))
	return &UpstreamService{Client: client}, nil
}

// clientConfig maps millisecond config knobs onto the client's durations.
// Zero values stay zero so the client applies its own defaults.
func clientConfig(u *config.UpstreamConfig) upstream.Config {
	return upstream.Config{
		MaxRetries:     u.MaxRetries,
		BaseBackoff:    u.GetBaseBackoffOption().OrElse(0),
		MaxBackoff:     u.GetMaxBackoffOption().OrElse(0),
		NetworkBackoff: u.GetNetworkBackoffOption().OrElse(0),
		APIVersion:     u.APIVersion,
		Breaker: upstream.BreakerConfig{
			FailureThreshold: int(u.Breaker.FailureThreshold),
			OpenSeconds:      u.Breaker.OpenSeconds,
		},
	}
}
