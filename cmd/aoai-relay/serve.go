package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omarluq/aoai-relay/internal/di"
	"github.com/omarluq/aoai-relay/internal/ro"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the aoai-relay server",
	Long: `Start the relay server that accepts chat-completion requests and forwards
them to the configured Azure OpenAI deployment with the credential attached.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	container, err := di.NewContainer(resolveConfigPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	cfgSvc, err := di.Invoke[*di.ConfigService](container)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}

	loggerSvc, err := di.Invoke[*di.LoggerService](container)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	log.Logger = *loggerSvc.Logger
	zerolog.DefaultContextLogger = loggerSvc.Logger

	serverSvc, err := di.Invoke[*di.ServerService](container)
	if err != nil {
		log.Error().Err(err).Msg("failed to build server")
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	cfgSvc.StartWatching(ctx)

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("listen", serverSvc.Server.Addr()).Msg("starting aoai-relay")
		serverErr <- serverSvc.Server.ListenAndServe()
	}()

	// Block until SIGINT/SIGTERM or server failure. Graceful draining
	// happens in the container's shutdown pass.
	shutdown := make(chan struct{})
	go func() {
		if sig, err := ro.WaitForShutdown(ctx); err == nil {
			log.Info().Str("signal", sig.String()).Msg("shutting down...")
		}
		close(shutdown)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			return err
		}
	case <-shutdown:
	}

	log.Info().Msg("server stopped")
	return nil
}
