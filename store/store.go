// Package store defines the tenant-scoped, TTL-bounded key/value contract
// backing authorization transactions and one-time codes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or past its TTL. Callers
// treat both cases identically, so expiry is indistinguishable from a key
// that never existed.
var ErrNotFound = errors.New("entry not found")

// Ephemeral is a tenant-isolated expiring store. Entries older than their
// TTL are invisible to reads even before any background purge runs.
type Ephemeral interface {
	// Put stores value under the tenant's namespace for at most ttl.
	Put(ctx context.Context, tenant, key string, value []byte, ttl time.Duration) error

	// Get returns the live value, or ErrNotFound.
	Get(ctx context.Context, tenant, key string) ([]byte, error)

	// GetAndRemove atomically consumes the live value: of any number of
	// concurrent callers, exactly one observes it, the rest get ErrNotFound.
	GetAndRemove(ctx context.Context, tenant, key string) ([]byte, error)

	// Delete removes the entry if present.
	Delete(ctx context.Context, tenant, key string) error
}
