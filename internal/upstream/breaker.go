package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// State is the circuit breaker state.
type State = gobreaker.State

// Circuit breaker state constants.
const (
	StateClosed   = gobreaker.StateClosed
	StateOpen     = gobreaker.StateOpen
	StateHalfOpen = gobreaker.StateHalfOpen
)

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultHalfOpenProbes   = 1
)

// BreakerConfig tunes the upstream circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int `yaml:"failure_threshold" toml:"failure_threshold"`

	// OpenSeconds is how long the circuit stays open before probing.
	OpenSeconds int `yaml:"open_seconds" toml:"open_seconds"`
}

// Breaker wraps sony/gobreaker's two-step breaker around the upstream.
// Only terminal retryable failures (network failures and exhausted retry
// budgets) count as breaker failures; a fatal 4xx means the provider is
// reachable and answering, so it counts as success.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker[struct{}]
}

// NewBreaker creates a Breaker from config, applying defaults for
// non-positive values.
func NewBreaker(cfg BreakerConfig) *Breaker {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: DefaultHalfOpenProbes,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold) //nolint:gosec // validated positive above
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := log.Info()
			if to == gobreaker.StateOpen {
				event = log.Warn()
			}
			event.
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if cfg.OpenSeconds > 0 {
		settings.Timeout = secondsToDuration(cfg.OpenSeconds)
	}

	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker[struct{}](settings)}
}

// Allow checks whether a call may proceed. The returned done callback
// must be invoked with the call's terminal error (nil for success).
func (b *Breaker) Allow() (done func(err error), err error) {
	d, err := b.cb.Allow()
	if err != nil {
		return nil, ErrCircuitOpen
	}
	return d, nil
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return b.cb.State()
}
