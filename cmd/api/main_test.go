package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-inventory-holds/internal/config"
	"github.com/ariefcatur/go-inventory-holds/internal/logger"
)

func memoryConfig(addr string) *config.Config {
	return &config.Config{
		App:   config.AppConfig{Env: "test", ServiceName: "inventory-test", HTTPAddr: addr},
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		Holds: config.HoldsConfig{TTL: time.Minute},
		Sweep: config.SweepConfig{Interval: time.Second, LockTTL: time.Second, InProcess: true},
	}
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := run(ctx, memoryConfig("127.0.0.1:0"), logger.Nop(), prometheus.NewRegistry(), http.NotFoundHandler())
	require.NoError(t, err)
}

func TestRunReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = run(ctx, memoryConfig(ln.Addr().String()), logger.Nop(), prometheus.NewRegistry(), http.NotFoundHandler())
	require.Error(t, err)
	require.NoError(t, ctx.Err())
}

func TestRunFailsBeforeServingOnBadStore(t *testing.T) {
	cfg := memoryConfig("127.0.0.1:0")
	cfg.Store = config.StoreConfig{
		Driver:      config.StoreDriverPostgres,
		PostgresDSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1",
		MaxConns:    1,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, cfg, logger.Nop(), prometheus.NewRegistry(), http.NotFoundHandler())
	require.ErrorContains(t, err, "bootstrap")
}
