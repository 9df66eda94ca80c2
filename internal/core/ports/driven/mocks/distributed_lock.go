package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

var _ driven.DistributedLock = (*MockDistributedLock)(nil)

// MockDistributedLock keeps leases as expiry times checked against Now.
// AcquireFn, when set, decides every Acquire instead.
type MockDistributedLock struct {
	mu     sync.Mutex
	leases map[string]mockLease
	seq    int
	ops    []string

	Now       func() time.Time
	AcquireFn func(name string, ttl time.Duration) (string, error)
	PingErr   error
}

type mockLease struct {
	token string
	until time.Time
}

func NewMockDistributedLock() *MockDistributedLock {
	return &MockDistributedLock{leases: map[string]mockLease{}, Now: time.Now}
}

func (m *MockDistributedLock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, error) {
	m.record("acquire " + name)
	if m.AcquireFn != nil {
		return m.AcquireFn(name, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.heldLocked(name) {
		return "", nil
	}
	return m.grantLocked(name, ttl), nil
}

// Release drops the lease on name only while it is still lease.
func (m *MockDistributedLock) Release(ctx context.Context, name, lease string) error {
	m.record("release " + name)
	m.mu.Lock()
	if l, ok := m.leases[name]; ok && l.token == lease {
		delete(m.leases, name)
	}
	m.mu.Unlock()
	return nil
}

func (m *MockDistributedLock) Ping(ctx context.Context) error { return m.PingErr }

// SetLockHeld makes name look taken by someone else for ttl and returns
// that holder's lease.
func (m *MockDistributedLock) SetLockHeld(name string, ttl time.Duration) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grantLocked(name, ttl)
}

// IsHeld reports whether an unexpired lease on name exists.
func (m *MockDistributedLock) IsHeld(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heldLocked(name)
}

// Ops returns the calls made so far, e.g. "acquire sync", "release sync".
func (m *MockDistributedLock) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *MockDistributedLock) grantLocked(name string, ttl time.Duration) string {
	m.seq++
	token := fmt.Sprintf("lease-%d", m.seq)
	m.leases[name] = mockLease{token: token, until: m.Now().Add(ttl)}
	return token
}

func (m *MockDistributedLock) heldLocked(name string) bool {
	l, ok := m.leases[name]
	return ok && m.Now().Before(l.until)
}

func (m *MockDistributedLock) record(op string) {
	m.mu.Lock()
	m.ops = append(m.ops, op)
	m.mu.Unlock()
}
