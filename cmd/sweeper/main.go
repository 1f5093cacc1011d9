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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariefcatur/go-inventory-holds/internal/app"
	"github.com/ariefcatur/go-inventory-holds/internal/config"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "inventory-sweeper"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName + "-sweeper",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Sweep.Interval.String(),
	})

	err = run(ctx, cfg, logg)
	stop()
	if err != nil {
		logg.Error(ctx, "sweeper stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "sweeper shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	a, err := app.New(ctx, cfg, logg, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer a.Close()

	sweeper, err := a.Sweeper()
	if err != nil {
		return fmt.Errorf("build sweeper: %w", err)
	}

	// Metrics only; the sweeper has no other HTTP surface.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.App.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting sweeper")
	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
