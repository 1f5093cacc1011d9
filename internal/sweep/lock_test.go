package sweep

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	evals   int
	evalErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = ttl
	return true, nil
}

// Eval runs the compare-and-delete the release script performs.
func (m *memRedis) Eval(_ context.Context, script string, keys []string, args ...any) (any, error) {
	m.evals++
	if m.evalErr != nil {
		return nil, m.evalErr
	}
	if script != releaseScript || len(keys) != 1 || len(args) != 1 {
		return nil, fmt.Errorf("unexpected script call")
	}
	if v, ok := m.data[keys[0]]; ok && v == fmt.Sprint(args[0]) {
		delete(m.data, keys[0])
		return int64(1), nil
	}
	return int64(0), nil
}

func TestRedisLockAcquireRelease(t *testing.T) {
	ctx := context.Background()
	store := newMemRedis()

	a, err := NewRedisLock(store, "inventory:sweep:lock", 0)
	require.NoError(t, err)
	b, err := NewRedisLock(store, "inventory:sweep:lock", 0)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultLockTTL, store.ttls["inventory:sweep:lock"])

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// b never owned the lock; releasing must not drop a's key.
	require.NoError(t, b.Release(ctx))
	require.Contains(t, store.data, "inventory:sweep:lock")

	require.NoError(t, a.Release(ctx))
	require.NotContains(t, store.data, "inventory:sweep:lock")

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	store := newMemRedis()
	a, err := NewRedisLock(store, "k", time.Second)
	require.NoError(t, err)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// TTL lapsed and another instance took over.
	store.data["k"] = "someone-else"
	require.NoError(t, a.Release(ctx))
	require.Equal(t, "someone-else", store.data["k"])
}

func TestRedisLockReleaseErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemRedis()
	l, err := NewRedisLock(store, "k", time.Second)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx))
	require.Zero(t, store.evals, "release without ownership never reaches redis")

	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.evalErr = errors.New("connection reset")
	require.ErrorContains(t, l.Release(ctx), "connection reset")
	require.Equal(t, 1, store.evals)

	// The owner token is dropped either way; the lease expires on its own.
	require.NoError(t, l.Release(ctx))
	require.Equal(t, 1, store.evals)
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)
	_, err = NewRedisLock(newMemRedis(), "", 0)
	require.Error(t, err)
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	var l LocalLock
	ok, _ := l.Acquire(ctx)
	require.True(t, ok)
	ok, _ = l.Acquire(ctx)
	require.False(t, ok)
	require.NoError(t, l.Release(ctx))
	ok, _ = l.Acquire(ctx)
	require.True(t, ok)
}
