package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-inventory-holds/internal/config"
	"github.com/ariefcatur/go-inventory-holds/internal/inventory"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App:   config.AppConfig{Env: "test", ServiceName: "inventory-test"},
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Holds: config.HoldsConfig{TTL: time.Minute},
		Sweep: config.SweepConfig{Interval: time.Second, LockTTL: time.Second},
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	a, err := New(ctx, memoryConfig(), logger.Nop(), reg)
	require.NoError(t, err)
	defer a.Close()
	require.Nil(t, a.Redis)

	_, err = a.Service.CreateProduct(ctx, inventory.ProductInput{SKU: "A", TotalQuantity: 3})
	require.NoError(t, err)
	r, err := a.Service.Reserve(ctx, "A", 1)
	require.NoError(t, err)
	require.WithinDuration(t, r.ReservedAt.Add(time.Minute), r.ExpiresAt, 0)

	sweeper, err := a.Sweeper()
	require.NoError(t, err)
	report, err := sweeper.RunCycle(ctx)
	require.NoError(t, err)
	require.Zero(t, report.Failed())

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	require.True(t, names["hold_transitions_total"])
	require.True(t, names["sweep_job_success_total"])
}

func TestNewFailsOnUnreachablePostgres(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = config.StoreConfig{
		Driver:      config.StoreDriverPostgres,
		PostgresDSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
		MaxConns:    1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := New(ctx, cfg, logger.Nop(), prometheus.NewRegistry())
	require.Error(t, err)
}
