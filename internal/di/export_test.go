package di

import "github.com/omarluq/aoai-relay/internal/config"

// ApplyRates exposes rate retuning for hot-reload tests.
func (s *RateLimitService) ApplyRates(limits *config.LimitsConfig) {
	s.applyRates(limits)
}
