package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven/mocks"
)

func newTestClassifier(db *mocks.MockDocumentDatabase) *Classifier {
	return NewClassifier(ClassifierConfig{
		Mapper:     NewFieldMapper("svc", nil, testRules()),
		IDOf:       func(n domain.NativeItem) string { return n.String("id") },
		Complete:   db.Get("svc-complete"),
		Incomplete: db.Get("svc-incomplete"),
	})
}

func TestClassifier_DuplicateScenario(t *testing.T) {
	db := mocks.NewMockDocumentDatabase()
	putDoc(t, db.Get("svc-incomplete"), "1", task("1", "same", "same", false))
	c := newTestClassifier(db)

	result, err := c.Classify(context.Background(), "svc", []domain.NativeItem{
		task("1", "same", "same", false),
		task("2", "brand new", "", false),
	})
	require.NoError(t, err)

	assert.Len(t, result.New, 1)
	assert.Len(t, result.Updated, 0)
	assert.Len(t, result.Duplicate, 1)
	assert.Equal(t, "1", result.Duplicate[0].String("id"))
}

func TestClassifier_OnlyStoredItemsCount(t *testing.T) {
	db := mocks.NewMockDocumentDatabase()
	putDoc(t, db.Get("svc-incomplete"), "1", task("1", "same", "same", false))
	c := newTestClassifier(db)

	result, err := c.Classify(context.Background(), "svc", []domain.NativeItem{task("1", "same", "same", false)})
	require.NoError(t, err)
	assert.Equal(t, 0, len(result.New))
	assert.Equal(t, 0, len(result.Updated))
	assert.Equal(t, 1, len(result.Duplicate))
}

func TestClassifier_Buckets(t *testing.T) {
	db := mocks.NewMockDocumentDatabase()
	putDoc(t, db.Get("svc-incomplete"), "1", task("1", "title", "desc", false))
	putDoc(t, db.Get("svc-complete"), "2", task("2", "done", "", true))
	putDoc(t, db.Get("svc-incomplete"), "3", task("3", "old title", "", false))
	c := newTestClassifier(db)

	items := []domain.NativeItem{
		task("1", "title", "desc", false), // duplicate
		task("2", "done", "", false),      // reopened: updated
		task("3", "new title", "", false), // renamed: updated
		task("4", "fresh", "", false),     // new
	}
	// Fields outside the declared list do not affect classification.
	items[0]["modified"] = 12345

	result, err := c.Classify(context.Background(), "svc", items)
	require.NoError(t, err)

	ids := func(list []domain.NativeItem) []string {
		var out []string
		for _, n := range list {
			out = append(out, n.String("id"))
		}
		return out
	}
	assert.Equal(t, []string{"4"}, ids(result.New))
	assert.Equal(t, []string{"2", "3"}, ids(result.Updated))
	assert.Equal(t, []string{"1"}, ids(result.Duplicate))
	assert.Equal(t, len(items), result.Total())
}

func TestClassifier_OrderIndependent(t *testing.T) {
	db := mocks.NewMockDocumentDatabase()
	for i := 0; i < 10; i += 2 {
		putDoc(t, db.Get("svc-incomplete"), fmt.Sprint(i), task(fmt.Sprint(i), "t", "", false))
	}
	c := newTestClassifier(db)

	var forward, backward []domain.NativeItem
	for i := 0; i < 10; i++ {
		forward = append(forward, task(fmt.Sprint(i), "t", "", false))
	}
	for i := 9; i >= 0; i-- {
		backward = append(backward, task(fmt.Sprint(i), "t", "", false))
	}

	a, err := c.Classify(context.Background(), "svc", forward)
	require.NoError(t, err)
	b, err := c.Classify(context.Background(), "svc", backward)
	require.NoError(t, err)

	assert.ElementsMatch(t, a.New, b.New)
	assert.ElementsMatch(t, a.Duplicate, b.Duplicate)
	assert.Len(t, a.New, 5)
	assert.Len(t, a.Duplicate, 5)
}

func TestClassifier_NotCumulative(t *testing.T) {
	db := mocks.NewMockDocumentDatabase()
	c := newTestClassifier(db)

	first, err := c.Classify(context.Background(), "svc", []domain.NativeItem{task("1", "a", "", false)})
	require.NoError(t, err)
	second, err := c.Classify(context.Background(), "svc", []domain.NativeItem{task("2", "b", "", false)})
	require.NoError(t, err)

	assert.Len(t, first.New, 1)
	assert.Len(t, second.New, 1)
	assert.Equal(t, "2", second.New[0].String("id"))
}

func TestClassifier_StoreFailure(t *testing.T) {
	db := mocks.NewMockDocumentDatabase()
	db.Get("svc-incomplete").GetFn = func(key string) (*domain.Document, error) {
		return nil, errors.New("disk on fire")
	}
	c := newTestClassifier(db)

	_, err := c.Classify(context.Background(), "svc", []domain.NativeItem{task("1", "a", "", false)})
	var storeErr *domain.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "svc-incomplete", storeErr.Store)
}
