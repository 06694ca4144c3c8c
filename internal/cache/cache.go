// Package cache is the expiring key-value store behind pending signups,
// email-dedup markers, activation replay guards and hot identity reads.
// Two implementations share the contract: Redis for multi-node deployments
// and an in-process store for single-node setups and tests.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss reports an absent (or expired) key. A miss is never a negative
// result: callers fall back to the source of truth and repopulate.
var ErrMiss = errors.New("cache miss")

type Cache interface {
	// Set stores value under key. A zero ttl keeps the entry until it is
	// overwritten.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the stored value or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	Has(ctx context.Context, key string) (bool, error)

	// SetNX stores the value only if the key is absent and reports whether
	// the write happened. This is the only check-and-set the service needs
	// (the activation replay guard).
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete drops a key. Absent keys are a no-op.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Key namespaces, kept stable because operators grep for them.

func PendingAccountKey(id string) string {
	return "temp-users:" + id
}

func EmailSentKey(email string) string {
	return "verifications/email-send/email:" + email
}

func UsedTokenKey(token string) string {
	return "verifications/email-tokens/token:" + token
}

func AccountKey(id string) string {
	return "cache/users:" + id
}

func DeviceKey(id string) string {
	return "cache/devices:" + id
}
