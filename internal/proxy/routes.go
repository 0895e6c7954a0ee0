package proxy

import (
	"net/http"

	"github.com/omarluq/aoai-relay/internal/config"
)

// NewRouter assembles the HTTP surface: the chat orchestrator, the
// diagnostics endpoint, and a liveness probe, wrapped in the shared
// middleware chain. Origin and body-size policy read live config so
// hot-reload takes effect without a restart.
func NewRouter(handler *Handler, diag *Diag, runtime config.RuntimeConfig) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /chat", handler)
	mux.Handle("GET /diag", diag)
	mux.HandleFunc("GET /healthz", handleHealthz)

	// CORS preflights for each route; OriginMiddleware answers them.
	mux.HandleFunc("OPTIONS /chat", preflightFallthrough)
	mux.HandleFunc("OPTIONS /diag", preflightFallthrough)
	mux.HandleFunc("OPTIONS /healthz", preflightFallthrough)

	chain := Chain(
		RequestIDMiddleware(),
		LoggingMiddleware(),
		OriginMiddleware(func() []string {
			return runtime.Get().Limits.AllowedOrigins
		}),
		MaxBodyBytesMiddleware(func() int64 {
			if limit, ok := runtime.Get().Server.GetMaxBodyBytesOption().Get(); ok {
				return limit
			}
			return DefaultMaxBodyBytes
		}),
	)

	return chain(mux)
}

// DefaultMaxBodyBytes bounds request bodies when unconfigured.
const DefaultMaxBodyBytes int64 = 1 << 20 // 1 MiB

// Middleware is a composable http.Handler wrapper.
type Middleware = func(http.Handler) http.Handler

// Chain composes middleware so the first listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// preflightFallthrough exists so OPTIONS requests route through the
// middleware chain; OriginMiddleware writes the preflight response
// before this is reached.
func preflightFallthrough(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
