package driven

import (
	"context"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// DocumentStore is one named local store of revisioned JSON documents
// (the config store, the pairing table, or a service category store).
type DocumentStore interface {
	// Name returns the store name.
	Name() string

	// Get retrieves a document by key.
	// Returns domain.ErrNotFound if no document has that key.
	Get(ctx context.Context, key string) (*domain.Document, error)

	// Put writes body under key and returns the new revision.
	// rev must equal the stored revision when the document exists, and be
	// empty when it does not; otherwise domain.ErrConflict is returned.
	Put(ctx context.Context, key string, body []byte, rev string) (string, error)

	// Remove deletes a document at the given revision.
	// Returns domain.ErrNotFound if missing, domain.ErrConflict on a stale rev.
	Remove(ctx context.Context, key, rev string) error

	// List returns every document ordered by key. Bodies are omitted unless
	// includeBody is set.
	List(ctx context.Context, includeBody bool) ([]*domain.Document, error)

	// Clear removes every document and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// DocumentDatabase hands out named DocumentStores backed by one database.
type DocumentDatabase interface {
	// Store returns the named store, creating it if needed.
	Store(ctx context.Context, name string) (DocumentStore, error)

	// Names lists stores that currently hold documents.
	Names(ctx context.Context) ([]string, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
