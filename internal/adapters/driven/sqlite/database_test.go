package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "tasksync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasksync.db")

	db, err := Open(path)
	require.NoError(t, err)
	s, err := db.Store(context.Background(), "config")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "last-update-zendesk", []byte(`{"time":5}`), "")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	s, err = db.Store(context.Background(), "config")
	require.NoError(t, err)
	doc, err := s.Get(context.Background(), "last-update-zendesk")
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":5}`, string(doc.Body))
}

func TestDocumentStore_Revisions(t *testing.T) {
	ctx := context.Background()
	s, err := openTestDB(t).Store(ctx, "syncs")
	require.NoError(t, err)

	rev1, err := s.Put(ctx, "1-2", []byte(`{"title":"a"}`), "")
	require.NoError(t, err)
	assert.Equal(t, 1, domain.RevisionGeneration(rev1))

	_, err = s.Put(ctx, "1-2", []byte(`{}`), "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = s.Put(ctx, "1-2", []byte(`{}`), "1-stale")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = s.Put(ctx, "9-9", []byte(`{}`), rev1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	rev2, err := s.Put(ctx, "1-2", []byte(`{"title":"b"}`), rev1)
	require.NoError(t, err)
	assert.Equal(t, 2, domain.RevisionGeneration(rev2))

	doc, err := s.Get(ctx, "1-2")
	require.NoError(t, err)
	assert.Equal(t, rev2, doc.Rev)
	assert.JSONEq(t, `{"title":"b"}`, string(doc.Body))

	assert.ErrorIs(t, s.Remove(ctx, "1-2", rev1), domain.ErrConflict)
	require.NoError(t, s.Remove(ctx, "1-2", rev2))
	assert.ErrorIs(t, s.Remove(ctx, "1-2", rev2), domain.ErrNotFound)

	_, err = s.Get(ctx, "1-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListNamesClear(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	complete, err := db.Store(ctx, "asana-complete")
	require.NoError(t, err)
	incomplete, err := db.Store(ctx, "asana-incomplete")
	require.NoError(t, err)

	for _, key := range []string{"30", "10", "20"} {
		_, err := complete.Put(ctx, key, []byte(`{"gid":"`+key+`"}`), "")
		require.NoError(t, err)
	}

	docs, err := complete.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"10", "20", "30"}, []string{docs[0].Key, docs[1].Key, docs[2].Key})
	assert.Nil(t, docs[0].Body)

	docs, err = complete.List(ctx, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"gid":"10"}`, string(docs[0].Body))

	docs, err = incomplete.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, docs)

	names, err := db.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"asana-complete"}, names)

	n, err := complete.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	names, err = db.Names(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDocumentStore_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s, err := openTestDB(t).Store(ctx, "config")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(ctx, "k", []byte(`{}`), ""); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins, "exactly one create may win")
}

func TestDatabase_EmptyStoreName(t *testing.T) {
	_, err := openTestDB(t).Store(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
