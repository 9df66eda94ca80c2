// Package memory provides in-process implementations of driven ports for
// single-instance deployments.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// Lock implements DistributedLock inside one process. Each held lock carries
// a timer that frees it when its TTL elapses.
type Lock struct {
	mu   sync.Mutex
	held map[string]*lease
	gen  uint64
}

type lease struct {
	timer *time.Timer
	gen   uint64
}

// NewLock creates an empty process-local lock table.
func NewLock() *Lock {
	return &Lock{held: make(map[string]*lease)}
}

// Acquire takes the named lock for ttl. With a non-positive ttl the lock is
// held until Release. The lease token is the acquisition's generation.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return "", nil
	}

	l.gen++
	ls := &lease{gen: l.gen}
	if ttl > 0 {
		gen := ls.gen
		ls.timer = time.AfterFunc(ttl, func() { l.expire(name, gen) })
	}
	l.held[name] = ls
	return strconv.FormatUint(ls.gen, 10), nil
}

// expire frees name only if it is still the lease that scheduled the timer.
func (l *Lock) expire(name string, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ls, ok := l.held[name]; ok && ls.gen == gen {
		delete(l.held, name)
	}
}

// Release frees the lock if lease is still the current holder. Releasing a
// lock that is not held, or is held under another lease, is a no-op.
func (l *Lock) Release(ctx context.Context, name, lease string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ls, ok := l.held[name]; ok && strconv.FormatUint(ls.gen, 10) == lease {
		if ls.timer != nil {
			ls.timer.Stop()
		}
		delete(l.held, name)
	}
	return nil
}

// Ping always succeeds.
func (l *Lock) Ping(ctx context.Context) error {
	return nil
}

// Held reports whether name is currently locked.
func (l *Lock) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[name]
	return ok
}
