package driven

import (
	"context"
	"time"
)

// DistributedLock guards the sync cycle. A lock is held by at most one
// caller and is released automatically once its TTL elapses, whether or
// not the holder released it.
type DistributedLock interface {
	// Acquire takes the named lock for ttl and returns a lease token naming
	// this acquisition. Returns an empty lease without error when the lock
	// is already held.
	Acquire(ctx context.Context, name string, ttl time.Duration) (lease string, err error)

	// Release frees the lock early, but only while lease still holds it.
	// Safe to call when the lease has expired or passed to another holder.
	Release(ctx context.Context, name, lease string) error

	// Ping checks if the lock backend is healthy.
	Ping(ctx context.Context) error
}
