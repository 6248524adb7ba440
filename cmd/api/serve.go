package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/qrcare/internal/router"
	"github.com/jwalitptl/qrcare/internal/repository/postgres"
	"github.com/jwalitptl/qrcare/pkg/validator"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if migrate, _ := cmd.Flags().GetBool("migrate"); migrate && a.db != nil {
				if _, err := postgres.Migrate(ctx, a.db); err != nil {
					return err
				}
			}
			if err := validator.RegisterWithGin(); err != nil {
				return fmt.Errorf("failed to register validators: %w", err)
			}

			r := router.NewRouter(a.deps, a.routerConfig())
			r.Setup()

			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:      r.Engine(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Int("port", cfg.Server.Port).Msg("starting server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("failed to start server: %w", err)
			case <-ctx.Done():
			}
			log.Info().Msg("shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Info().Msg("server exited properly")
			return nil
		},
	}
	cmd.Flags().Bool("migrate", true, "Apply pending migrations before serving")
	return cmd
}
