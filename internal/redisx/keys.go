package redisx

import (
	"fmt"
	"time"
)

const (
	// Checkout idempotency: inventory:idem:checkout:{user_ref}:{idempotency_key} -> order_id
	KeyIdemCheckout = "inventory:idem:checkout:%s:%s"

	// Sweep cycle lock shared by every sweeper instance.
	KeySweepLock = "inventory:sweep:lock:%s"
)

var TTLIdempotency = 24 * time.Hour

func IdemCheckoutKey(userRef, idemKey string) string {
	return fmt.Sprintf(KeyIdemCheckout, userRef, idemKey)
}

func SweepLockKey(env string) string {
	if env == "" {
		env = "default"
	}
	return fmt.Sprintf(KeySweepLock, env)
}
