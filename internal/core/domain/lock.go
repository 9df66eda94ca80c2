package domain

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// SyncLockName is the lock every cycle, purge and purge-local takes.
const SyncLockName = "sync"

// NewLockOwner returns a token naming this process as a lock holder:
// host, pid and a random suffix so two holders in one process differ.
func NewLockOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()[:8])
}

// NewLease returns a token for one acquisition by owner. Release compares
// it, so a holder whose lease expired cannot free its successor's.
func NewLease(owner string) string {
	return owner + "#" + uuid.NewString()[:8]
}
