package driving

import (
	"context"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// SyncEngine is the operator-facing surface of the reconciliation engine.
type SyncEngine interface {
	// Sync runs one cycle. Fails with *domain.LockError when a cycle is
	// already running.
	Sync(ctx context.Context) (*domain.CycleResult, error)

	// Start begins automatic syncing every polling interval.
	Start(ctx context.Context) error

	// DisableAutoSync stops automatic syncing. Manual cycles still run.
	DisableAutoSync()

	// Purge deletes every remote item of a service and returns the count.
	Purge(ctx context.Context, service string) (int, error)

	// PurgeLocal clears every local store.
	PurgeLocal(ctx context.Context) (int, error)

	// ResetWatermark forces the next fetch of a service to a full resync.
	ResetWatermark(ctx context.Context, service string) error

	// Stores lists the local store names available to Dump.
	Stores() []string

	// Dump returns every document of a local store.
	Dump(ctx context.Context, store string) ([]*domain.Document, error)

	// State returns a snapshot of the engine.
	State() *domain.EngineState
}
