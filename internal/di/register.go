package di

import "github.com/samber/do/v2"

// RegisterSingletons registers all service providers as singletons.
// Services are registered in dependency order:
// 1. Config (no dependencies)
// 2. Logger (depends on Config)
// 3. Cache (depends on Config)
// 4. Secrets (depends on Config)
// 5. RateLimit (depends on Config) - global and per-user buckets
// 6. Gate (depends on Config) - upstream concurrency bound
// 7. Idempotency (depends on Config, Cache)
// 8. Upstream (depends on Config, Secrets)
// 9. Handler (depends on all above services)
// 10. Server (depends on Handler, Config).
func RegisterSingletons(i do.Injector) {
	do.Provide(i, NewConfig)
	do.Provide(i, NewLogger)
	do.Provide(i, NewCache)
	do.Provide(i, NewSecrets)
	do.Provide(i, NewRateLimit)
	do.Provide(i, NewGate)
	do.Provide(i, NewIdempotency)
	do.Provide(i, NewUpstream)
	do.Provide(i, NewHandler)
	do.Provide(i, NewHTTPServer)
}
