package driven

import (
	"context"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// Connector is the REST client for one remote task service.
type Connector interface {
	// Name returns the service name used in store names and logs.
	Name() string

	// IDField returns the native field holding the item id.
	IDField() string

	// FieldRules returns the service's per-field conversion rules.
	FieldRules() domain.FieldRules

	// IsComplete reports the native completion state of an item.
	IsComplete(item domain.NativeItem) bool

	// FetchChanged returns every item modified at or after since (epoch
	// seconds), following the service's paging until exhausted.
	FetchChanged(ctx context.Context, since int64) ([]domain.NativeItem, error)

	// Create creates a remote item and returns it as the service stored it.
	// A 2xx response with an embedded error payload is a *domain.RemoteWriteError.
	Create(ctx context.Context, payload domain.NativeItem) (domain.NativeItem, error)

	// Update applies payload to the remote item id and returns the result.
	Update(ctx context.Context, id string, payload domain.NativeItem) (domain.NativeItem, error)

	// ListScope returns the ids of every remote item in the configured scope.
	ListScope(ctx context.Context) ([]string, error)

	// Delete removes one remote item.
	Delete(ctx context.Context, id string) error

	// Client returns the underlying API client handle.
	Client() any
}
