package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
)

type testAdapter struct {
	*Adapter
	remote *mocks.MockConnector
	db     *mocks.MockDocumentDatabase
}

func (ta *testAdapter) complete() *mocks.MockDocumentStore {
	return ta.db.Get(domain.StoreName(ta.Name(), domain.CategoryComplete))
}

func (ta *testAdapter) incomplete() *mocks.MockDocumentStore {
	return ta.db.Get(domain.StoreName(ta.Name(), domain.CategoryIncomplete))
}

func (ta *testAdapter) config() *mocks.MockDocumentStore {
	return ta.db.Get(domain.StoreConfig)
}

// newTestAdapter returns an initialized adapter over an in-memory remote
// service sharing db.
func newTestAdapter(t *testing.T, db *mocks.MockDocumentDatabase, name string, firstID int) *testAdapter {
	t.Helper()
	remote := mocks.NewMockConnector(name, firstID)
	a := NewAdapter(remote)
	err := a.Init(context.Background(), driving.CommonConfig{
		FieldMap:        domain.DefaultFieldMap,
		Config:          db.Get(domain.StoreConfig),
		Complete:        db.Get(domain.StoreName(name, domain.CategoryComplete)),
		Incomplete:      db.Get(domain.StoreName(name, domain.CategoryIncomplete)),
		PollingInterval: 300 * time.Second,
		StoreTimeout:    time.Second,
	})
	require.NoError(t, err)
	return &testAdapter{Adapter: a, remote: remote, db: db}
}

// putDoc stores item as JSON under key.
func putDoc(t *testing.T, s *mocks.MockDocumentStore, key string, item any) {
	t.Helper()
	body, err := json.Marshal(item)
	require.NoError(t, err)
	current := ""
	if doc, err := s.Get(context.Background(), key); err == nil {
		current = doc.Rev
	}
	_, err = s.Put(context.Background(), key, body, current)
	require.NoError(t, err)
}

// readDoc decodes the document stored under key.
func readDoc(t *testing.T, s *mocks.MockDocumentStore, key string) domain.NativeItem {
	t.Helper()
	doc, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	item, err := domain.DecodeNativeItem(doc.Body)
	require.NoError(t, err)
	return item
}

func task(id, name, notes string, done bool) domain.NativeItem {
	return domain.NativeItem{"id": id, "name": name, "notes": notes, "done": done}
}
