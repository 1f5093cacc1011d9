package memstore

import (
	"context"
	"sync"
)

// keyedLocks hands out one exclusive slot per key. Acquisition honours ctx.
type keyedLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{slots: make(map[string]chan struct{})}
}

func (k *keyedLocks) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.slots[key] = ch
	}
	return ch
}

func (k *keyedLocks) acquire(ctx context.Context, key string) error {
	select {
	case k.slot(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyedLocks) release(key string) {
	<-k.slot(key)
}
