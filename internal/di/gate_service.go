package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/gate"
)

// GateService wraps the upstream concurrency gate.
// The permit bound is fixed at startup; resizing a semaphore with live
// waiters has no safe semantics, so max_parallel changes need a restart.
type GateService struct {
	Gate *gate.Gate
}

// NewGate creates the concurrency gate from the current config.
func NewGate(i do.Injector) (*GateService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)

	return &GateService{
		Gate: gate.New(cfgSvc.Get().Limits.GetEffectiveMaxParallel()),
	}, nil
}
