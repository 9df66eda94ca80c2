package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*LeaseLock)(nil)

func leaseKey(name string) string { return "tasksync:lease:" + name }

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaseLock stores a per-acquisition lease token under the lease key and
// lets Redis expire it after the TTL. Tokens start with the lock's owner.
type LeaseLock struct {
	client *redis.Client
	owner  string
}

// NewLeaseLock creates a lease lock owned by this process.
func NewLeaseLock(client *redis.Client) *LeaseLock {
	return &LeaseLock{client: client, owner: domain.NewLockOwner()}
}

// Owner prefixes every lease token this lock writes.
func (l *LeaseLock) Owner() string { return l.owner }

func (l *LeaseLock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	lease := domain.NewLease(l.owner)
	err := l.client.SetArgs(ctx, leaseKey(name), lease, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return lease, nil
}

// Release drops the lease on name if it is still lease. A lease that
// expired or passed to another acquisition is left alone, even one taken by
// this same process.
func (l *LeaseLock) Release(ctx context.Context, name, lease string) error {
	err := compareAndDelete.Run(ctx, l.client, []string{leaseKey(name)}, lease).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

// Holder returns the token of the current lease on name, or "" when nobody
// holds it.
func (l *LeaseLock) Holder(ctx context.Context, name string) (string, error) {
	owner, err := l.client.Get(ctx, leaseKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}

func (l *LeaseLock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
