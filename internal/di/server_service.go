package di

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/omarluq/aoai-relay/internal/proxy"
)

// shutdownGrace bounds how long in-flight requests may drain.
const shutdownGrace = 30 * time.Second

// ServerService wraps the HTTP server.
type ServerService struct {
	Server *proxy.Server
}

// NewHTTPServer creates the HTTP server bound to the configured address.
func NewHTTPServer(i do.Injector) (*ServerService, error) {
	cfgSvc := do.MustInvoke[*ConfigService](i)
	handlerSvc := do.MustInvoke[*HandlerService](i)

	cfg := cfgSvc.Get()
	server := proxy.NewServer(cfg.Server.Listen, handlerSvc.Handler, cfg.Server.EnableHTTP2)

	return &ServerService{Server: server}, nil
}

// Shutdown implements do.Shutdowner for graceful request draining.
func (s *ServerService) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return s.Server.Shutdown(ctx)
}
