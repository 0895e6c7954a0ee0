package di

import (
	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/idempotency"
)

// IdempotencyService wraps the idempotency store.
type IdempotencyService struct {
	Store *idempotency.Store
}

// NewIdempotency creates the idempotency store over the shared cache.
func NewIdempotency(i do.Injector) (*IdempotencyService, error) {
	cacheSvc := do.MustInvoke[*CacheService](i)

	return &IdempotencyService{
		Store: idempotency.New(cacheSvc.Cache, idempotency.Config{}),
	}, nil
}
