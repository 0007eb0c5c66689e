package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/creastat/assistant/config"
	"github.com/creastat/assistant/logging"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the staging sweeper",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := bootstrap(ctx, cfg)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		defer a.Close()

		return serve(ctx, a)
	},
}

// loadConfig initializes logging, loads and validates configuration and
// re-initializes logging with the configured settings.
func loadConfig() (*config.Config, error) {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "assistantd"})

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "assistantd"})
	return cfg, nil
}

func serve(ctx context.Context, a *app) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		runSweeper(ctx, a, a.cfg.SweepInterval)
		return nil
	})

	return g.Wait()
}

// runSweeper purges expired staging copies every interval until ctx ends.
func runSweeper(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweepOnce(ctx, a); err != nil {
				log.Warn().Err(err).Msg("Staging sweep failed")
			}
		}
	}
}
