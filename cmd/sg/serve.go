package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"scrumgame/internal/server"
	"scrumgame/internal/telemetry"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Serve the REST API, event streams, the daily sprint reminders, IMS polling and project webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				s.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				s.BasePath = basePath
			}
			if s.JWTSecret == "" {
				return fmt.Errorf("SCRUMGAME_JWT_SECRET is required for bearer auth")
			}
			logger := newLogger(s)
			ctx := cmd.Context()

			shutdownTracing, err := telemetry.Setup(ctx, "scrumgame", s.OTelEndpoint)
			if err != nil {
				return fmt.Errorf("setup tracing: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(sctx); err != nil {
					logger.Warn("flush traces", "error", err)
				}
			}()

			e, conn, err := openEngine(s, logger)
			if err != nil {
				return err
			}
			defer conn.Close()
			defer e.Close()

			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: s.BasePath,
				Auth:     server.AuthConfig{JWTSecret: s.JWTSecret, DevLogin: s.DevLogin},
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: s.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				e.Reminders.Run(gctx)
				return nil
			})
			g.Go(func() error {
				e.RunSync(gctx, s.SyncInterval, s.IMSToken)
				return nil
			})
			g.Go(func() error {
				server.NewWebhookDispatcher(e, logger).Run(gctx)
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			g.Go(func() error {
				logger.Info("serving scrumgame api", "addr", s.Addr, "base_path", s.BasePath, "dev_login", s.DevLogin)
				fmt.Printf("Serving Scrumgame API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", s.Addr, s.BasePath, s.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return http.ErrServerClosed
			})
			if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address (overrides SCRUMGAME_ADDR)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path (overrides SCRUMGAME_BASE_PATH)")
	return cmd
}
