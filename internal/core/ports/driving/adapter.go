package driving

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// CommonConfig carries the resources shared by both service adapters.
type CommonConfig struct {
	// FieldMap is the ordered declared field list.
	FieldMap []string

	// Config holds watermark documents.
	Config driven.DocumentStore

	// Complete and Incomplete are this adapter's category stores.
	Complete   driven.DocumentStore
	Incomplete driven.DocumentStore

	// PollingInterval sizes the fetch look-back margin.
	PollingInterval time.Duration

	// StoreTimeout bounds every local store call.
	StoreTimeout time.Duration

	Logger *slog.Logger
}

// ServiceAdapter binds one remote service to its local stores.
type ServiceAdapter interface {
	// Name returns the service name.
	Name() string

	// Init binds shared resources. Fails with *domain.InitError.
	Init(ctx context.Context, cfg CommonConfig) error

	// Fetch retrieves remote changes since the watermark, minus the
	// look-back margin, and classifies them against the local stores.
	// The result is also kept for Get until Discard is called.
	Fetch(ctx context.Context) (*domain.Classification, error)

	// Get returns the new or updated items of the most recent fetch.
	// Any other bucket returns nil.
	Get(bucket domain.Bucket) []domain.NativeItem

	// Service returns the remote client handle.
	Service() any

	// Discard drops the most recent classification.
	Discard()

	// ToGeneric maps a native item to the generic shape.
	ToGeneric(item domain.NativeItem, partial bool) (domain.GenericItem, error)

	// ToNative maps a generic item to this service's shape.
	ToNative(item domain.GenericItem, partial bool) (domain.NativeItem, error)

	// NativeID returns the string form of a native item's id.
	NativeID(item domain.NativeItem) string

	// NewItem creates the remote item and stores the result locally. When
	// only the local write fails, the created item is returned with the error.
	NewItem(ctx context.Context, item domain.GenericItem) (domain.NativeItem, error)

	// UpdateItem updates remote item id and refreshes its local copy.
	UpdateItem(ctx context.Context, item domain.GenericItem, id string) (domain.NativeItem, error)

	// PushLocal upserts a native item into the category store matching its
	// native completion state, removing any copy from the other category.
	PushLocal(ctx context.Context, item domain.NativeItem) error

	// DeleteLocal removes an item from both category stores.
	DeleteLocal(ctx context.Context, id string) error

	// Purge deletes every remote item in scope and clears the watermark.
	// Fails with *domain.PurgeError if any deletion fails.
	Purge(ctx context.Context) (int, error)

	// SetLastUpdateTime persists the watermark. Zero resets it.
	SetLastUpdateTime(ctx context.Context, epochMillis int64) error

	// LastUpdateTime returns the watermark in epoch seconds.
	LastUpdateTime(ctx context.Context) (int64, error)
}
