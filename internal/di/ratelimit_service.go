package di

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/config"
	"github.com/omarluq/aoai-relay/internal/ratelimit"
)

// RateLimitService wraps the two rate-limit partitions: the shared
// global bucket and the per-caller buckets.
type RateLimitService struct {
	Global  *ratelimit.KeyedLimiter
	PerUser *ratelimit.KeyedLimiter

	sweepCancel context.CancelFunc
}

// NewRateLimit creates both limiter partitions from the current config
// and registers for hot-reload so rate changes apply without a restart.
func NewRateLimit(i do.Injector) (*RateLimitService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	limits := cfgSvc.Get().Limits

	svc := &RateLimitService{
		Global:  ratelimit.NewKeyed("global", limits.GetEffectiveGlobalRPS()),
		PerUser: ratelimit.NewKeyed("user", limits.GetEffectiveUserRPS()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc.sweepCancel = cancel
	svc.Global.StartSweeper(ctx, ratelimit.DefaultSweepInterval)
	svc.PerUser.StartSweeper(ctx, ratelimit.DefaultSweepInterval)

	cfgSvc.OnReload(func(newCfg *config.Config) error {
		svc.applyRates(&newCfg.Limits)
		return nil
	})

	return svc, nil
}

// applyRates retunes both partitions; untouched rates are cheap no-ops.
func (s *RateLimitService) applyRates(limits *config.LimitsConfig) {
	globalRPS := limits.GetEffectiveGlobalRPS()
	userRPS := limits.GetEffectiveUserRPS()

	if s.Global.Rate() != globalRPS {
		s.Global.SetRate(globalRPS)
		log.Info().Float64("global_rps", globalRPS).Msg("global rate limit updated via hot-reload")
	}
	if s.PerUser.Rate() != userRPS {
		s.PerUser.SetRate(userRPS)
		log.Info().Float64("user_rps", userRPS).Msg("per-user rate limit updated via hot-reload")
	}
}

// Shutdown implements do.Shutdowner; it stops the background sweepers.
func (s *RateLimitService) Shutdown() error {
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
	return nil
}
