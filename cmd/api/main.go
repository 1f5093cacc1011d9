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
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-inventory-holds/internal/app"
	"github.com/ariefcatur/go-inventory-holds/internal/config"
	"github.com/ariefcatur/go-inventory-holds/internal/httpx"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
	"github.com/ariefcatur/go-inventory-holds/internal/sweep"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "inventory-api"})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: cfg.App.ServiceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	err = run(ctx, cfg, logg, prometheus.DefaultRegisterer, promhttp.Handler())
	stop()
	if err != nil {
		logg.Error(ctx, "api stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api shut down gracefully")
}

// run serves until ctx is done. Everything that can fail is built before
// any goroutine starts, and the app is closed on every return path.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer, metricsHandler http.Handler) error {
	a, err := app.New(ctx, cfg, logg, reg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer a.Close()

	var sweeper *sweep.Service
	if cfg.Sweep.InProcess {
		sweeper, err = a.Sweeper()
		if err != nil {
			return fmt.Errorf("build sweeper: %w", err)
		}
	}

	var idem httpx.IdempotencyStore
	if a.Redis != nil {
		idem = a.Redis
	}
	router := httpx.NewRouter(httpx.RouterParams{
		Logger:      logg,
		Service:     a.Service,
		Idempotency: idem,
		Metrics:     metricsHandler,
	})
	srv := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", srv.Addr), "http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if sweeper != nil {
		g.Go(func() error {
			if err := sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
