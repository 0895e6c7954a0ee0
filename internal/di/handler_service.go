package di

import (
	"net/http"

	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/proxy"
)

// HandlerService wraps the HTTP handler.
type HandlerService struct {
	Handler http.Handler
}

// NewHandler assembles the request orchestrator, the diagnostics
// endpoint, and the middleware chain into the served handler.
func NewHandler(injector do.Injector) (*HandlerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](injector)
	rateSvc := do.MustInvoke[*RateLimitService](injector)
	gateSvc := do.MustInvoke[*GateService](injector)
	idemSvc := do.MustInvoke[*IdempotencyService](injector)
	cacheSvc := do.MustInvoke[*CacheService](injector)
	secretsSvc := do.MustInvoke[*SecretsService](injector)
	upstreamSvc := do.MustInvoke[*UpstreamService](injector)

	handler := proxy.NewHandler(
		cfgSvc,
		rateSvc.Global,
		rateSvc.PerUser,
		gateSvc.Gate,
		upstreamSvc.Client,
		idemSvc.Store,
	)

	diag := proxy.NewDiag(
		rateSvc.Global,
		rateSvc.PerUser,
		gateSvc.Gate,
		idemSvc.Store,
		cacheSvc.Cache,
		secretsSvc.Provider.Presence,
		func() string { return upstreamSvc.Client.BreakerState().String() },
	)

	return &HandlerService{
		Handler: proxy.NewRouter(handler, diag, cfgSvc),
	}, nil
}
