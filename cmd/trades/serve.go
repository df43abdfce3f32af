package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trades-must-flow/internal/api"
	"github.com/Veraticus/the-trades-must-flow/internal/config"
	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the import API",
		Long: `Serve the chunked import API over HTTP.

Every /import route requires an HS256 bearer token signed with
auth.jwt_secret; its subject is the user id. Stale processing runs are
expired on the expiry.schedule cron.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (default: server.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}

	auth, err := api.NewAuthenticator(cfg.JWTSecret)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, err := scheduleExpiry(ctx, a.ctrl, cfg.ExpirySchedule)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(a.ctrl, auth, a.files).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("🚀 Import API listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down import API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// scheduleExpiry registers the stale-run sweep. An empty schedule disables it.
func scheduleExpiry(ctx context.Context, ctrl *ingest.Controller, schedule string) (*cron.Cron, error) {
	c := cron.New()
	if schedule == "" {
		slog.Warn("Stale run expiry disabled")
		return c, nil
	}

	_, err := c.AddFunc(schedule, func() {
		if _, err := ctrl.ExpireStale(ctx); err != nil {
			slog.Warn("Failed to expire stale runs", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid expiry.schedule %q: %w", schedule, err)
	}
	return c, nil
}
