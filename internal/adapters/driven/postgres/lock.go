package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*LeaseLock)(nil)

// LeaseLock implements DistributedLock with rows in sync_locks. A row is a
// lease: it may be taken over once expires_at has passed, so a crashed
// holder never blocks later cycles for longer than the TTL.
type LeaseLock struct {
	db      *DB
	ownerID string
}

// NewLeaseLock creates a lease lock owned by this process.
func NewLeaseLock(db *DB) *LeaseLock {
	return &LeaseLock{db: db, ownerID: domain.NewLockOwner()}
}

// Acquire inserts the lease, or takes over an expired one. The owner column
// stores the per-acquisition lease token.
func (l *LeaseLock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	lease := domain.NewLease(l.ownerID)
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_locks (name, owner, expires_at)
		VALUES ($1, $2, NOW() + $3::bigint * INTERVAL '1 millisecond')
		ON CONFLICT (name) DO UPDATE
			SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
			WHERE sync_locks.expires_at <= NOW()
	`, name, lease, ttl.Milliseconds())
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if n != 1 {
		return "", nil
	}
	return lease, nil
}

// Release deletes the row if it still carries lease.
func (l *LeaseLock) Release(ctx context.Context, name, lease string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM sync_locks WHERE name = $1 AND owner = $2`,
		name, lease,
	)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

func (l *LeaseLock) Ping(ctx context.Context) error {
	return l.db.Ping(ctx)
}
