package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nlquery/nlquery/internal/api"
	"github.com/nlquery/nlquery/internal/auth"
	"github.com/nlquery/nlquery/internal/observability"
)

func newServeCmd(opts *Options) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP translation service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, mustString(cmd, "db"))
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.HTTP.Address = fmt.Sprintf(":%d", port)
			}

			rt, err := buildRuntime(cmd.Context(), opts, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			logger := observability.NewLogger(cfg, opts.Stderr)
			deps := api.Dependencies{
				Logger:            logger,
				Runner:            rt.runner,
				Introspector:      rt.introspector,
				DependencyTimeout: time.Second,
			}
			if rt.pool != nil {
				deps.Readiness = api.CheckDatabase(rt.pool)
			}
			if cfg.Auth.Required {
				validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
				if err != nil {
					return &usageError{err: fmt.Errorf("parse static auth keys: %w", err)}
				}
				deps.AuthMiddleware = auth.Middleware(logger, validator)
			}

			server := &http.Server{
				Addr:         cfg.HTTP.Address,
				Handler:      api.NewHandler(cfg, deps),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
					cancel()
				}
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			logger.Info("shutting down api server")
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", slog.Any("error", err))
				_ = server.Close()
				return err
			}
			select {
			case err := <-errCh:
				return err
			default:
				return nil
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides NLQUERY_HTTP_ADDRESS)")
	return cmd
}
