package proxy

import (
	"net/http"

	"github.com/omarluq/aoai-relay/internal/cache"
	"github.com/omarluq/aoai-relay/internal/gate"
	"github.com/omarluq/aoai-relay/internal/idempotency"
	"github.com/omarluq/aoai-relay/internal/ratelimit"
	"github.com/omarluq/aoai-relay/internal/secrets"
)

// DiagSnapshot is the read-only diagnostics payload. It exposes
// presence, never values, for secret configuration.
type DiagSnapshot struct {
	GlobalBuckets []ratelimit.BucketSnapshot `json:"global_buckets"`
	UserBuckets   []ratelimit.BucketSnapshot `json:"user_buckets"`
	Gate          gate.Snapshot              `json:"gate"`
	Breaker       string                     `json:"breaker"`
	Idempotency   IdempotencySnapshot        `json:"idempotency"`
	Cache         *cache.Stats               `json:"cache,omitempty"`
	Secrets       secrets.Presence           `json:"secrets"`
}

// IdempotencySnapshot reports idempotency store occupancy.
type IdempotencySnapshot struct {
	Entries int `json:"entries"`
}

// BreakerStateFunc reports the upstream circuit state for diagnostics.
type BreakerStateFunc func() string

// Diag serves the read-only diagnostics endpoint.
type Diag struct {
	global   *ratelimit.KeyedLimiter
	perUser  *ratelimit.KeyedLimiter
	gate     *gate.Gate
	idem     *idempotency.Store
	store    cache.Cache
	presence func() secrets.Presence
	breaker  BreakerStateFunc
}

// NewDiag wires the diagnostics handler.
func NewDiag(
	global, perUser *ratelimit.KeyedLimiter,
	g *gate.Gate,
	idem *idempotency.Store,
	store cache.Cache,
	presence func() secrets.Presence,
	breaker BreakerStateFunc,
) *Diag {
	return &Diag{
		global:   global,
		perUser:  perUser,
		gate:     g,
		idem:     idem,
		store:    store,
		presence: presence,
		breaker:  breaker,
	}
}

// ServeHTTP handles GET /diag.
func (d *Diag) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	snapshot := DiagSnapshot{
		GlobalBuckets: d.global.Snapshot(),
		UserBuckets:   d.perUser.Snapshot(),
		Gate:          d.gate.Snapshot(),
		Breaker:       d.breaker(),
		Idempotency:   IdempotencySnapshot{Entries: d.idem.Len()},
		Secrets:       d.presence(),
	}

	if sp, ok := d.store.(cache.StatsProvider); ok {
		stats := sp.Stats()
		snapshot.Cache = &stats
	}

	writeJSON(w, http.StatusOK, snapshot)
}
