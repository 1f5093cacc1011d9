package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ariefcatur/go-inventory-holds/internal/config"
	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-holds/internal/kafka"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
	"github.com/ariefcatur/go-inventory-holds/internal/memstore"
	"github.com/ariefcatur/go-inventory-holds/internal/metrics"
	"github.com/ariefcatur/go-inventory-holds/internal/postgres"
	"github.com/ariefcatur/go-inventory-holds/internal/redisx"
	"github.com/ariefcatur/go-inventory-holds/internal/sweep"
)

// App holds the wired dependencies shared by the api and sweeper binaries.
type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Service *inventory.Service
	// Redis is nil when no address is configured.
	Redis *redisx.Client

	registerer prometheus.Registerer
	closers    []func()
}

// New connects the configured store, Redis and Kafka and builds the
// inventory service on top of them. Close releases whatever was opened,
// including on error.
func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logg, registerer: reg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		rdb, err := redisx.New(ctx, redisx.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		a.closers = append(a.closers, func() {
			if err := rdb.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		})
	}

	var publisher inventory.Publisher
	if cfg.Kafka.Enabled() {
		prod := kafkax.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Buffer, logg)
		a.closers = append(a.closers, prod.Close)
		publisher = kafkax.NewEventPublisher(prod, cfg.App.ServiceName, logg)
	}

	svc, err := inventory.NewService(inventory.ServiceParams{
		Store:     store,
		Logger:    logg,
		Publisher: publisher,
		Recorder:  metrics.NewHoldMetrics(reg),
		HoldTTL:   cfg.Holds.TTL,
	})
	if err != nil {
		return nil, err
	}
	a.Service = svc
	return a, nil
}

func (a *App) openStore(ctx context.Context) (inventory.Store, error) {
	if a.Config.Store.Driver == config.StoreDriverMemory {
		a.Logger.Warn(ctx, "using in-memory store; state is lost on restart")
		return memstore.New(), nil
	}
	pool, err := postgres.Connect(ctx, a.Config.Store.PostgresDSN, postgres.PoolOptions{
		MaxConns: a.Config.Store.MaxConns,
		MinConns: a.Config.Store.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if a.Config.Store.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
	}
	return postgres.NewStore(pool), nil
}

// Sweeper builds the expiry sweeper. With Redis configured the cycle lock is
// shared across instances; otherwise it only guards this process.
func (a *App) Sweeper() (*sweep.Service, error) {
	m := metrics.NewSweepMetrics(a.registerer)
	resJob, err := sweep.NewReservationExpiryJob(a.Service, a.Logger, m)
	if err != nil {
		return nil, err
	}
	ordJob, err := sweep.NewOrderExpiryJob(a.Service, a.Logger, m)
	if err != nil {
		return nil, err
	}

	var lock sweep.Lock = &sweep.LocalLock{}
	if a.Redis != nil {
		lock, err = sweep.NewRedisLock(a.Redis, redisx.SweepLockKey(a.Config.App.Env), a.Config.Sweep.LockTTL)
		if err != nil {
			return nil, err
		}
	}
	return sweep.NewService(sweep.ServiceParams{
		Logger:   a.Logger,
		Jobs:     []sweep.Job{resJob, ordJob},
		Lock:     lock,
		Metrics:  m,
		Interval: a.Config.Sweep.Interval,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
