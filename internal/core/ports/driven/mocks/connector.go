package mocks

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

var _ driven.Connector = (*MockConnector)(nil)

// MockConnector is an in-memory remote task service. Native items use the
// fields id, name, notes, done and modified (epoch seconds).
type MockConnector struct {
	name   string
	mu     sync.Mutex
	items  map[string]domain.NativeItem
	nextID int

	creates, updates, deletes, fetches int

	// Custom behavior hooks (optional)
	FetchChangedFn func(ctx context.Context, since int64) ([]domain.NativeItem, error)
	CreateFn       func(ctx context.Context, payload domain.NativeItem) (domain.NativeItem, error)
	UpdateFn       func(ctx context.Context, id string, payload domain.NativeItem) (domain.NativeItem, error)
	DeleteFn       func(ctx context.Context, id string) error
	ListScopeFn    func(ctx context.Context) ([]string, error)
	RulesFn        func() domain.FieldRules
}

// NewMockConnector creates an empty remote service whose generated ids
// start at firstID.
func NewMockConnector(name string, firstID int) *MockConnector {
	return &MockConnector{
		name:   name,
		items:  make(map[string]domain.NativeItem),
		nextID: firstID,
	}
}

func (m *MockConnector) Name() string    { return m.name }
func (m *MockConnector) IDField() string { return "id" }
func (m *MockConnector) Client() any     { return m }

// FieldRules maps id, title, description and complete.
func (m *MockConnector) FieldRules() domain.FieldRules {
	if m.RulesFn != nil {
		return m.RulesFn()
	}
	return domain.FieldRules{
		domain.FieldID: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.ID = src.String("id") },
			ToNative: func(src domain.GenericItem, dst domain.NativeItem) {
				if src.ID != "" {
					dst["id"] = src.ID
				}
			},
		},
		domain.FieldTitle: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.Title = src.String("name") },
			ToNative:  func(src domain.GenericItem, dst domain.NativeItem) { dst["name"] = src.Title },
		},
		domain.FieldDescription: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.Description = src.String("notes") },
			ToNative:  func(src domain.GenericItem, dst domain.NativeItem) { dst["notes"] = src.Description },
		},
		domain.FieldComplete: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.Complete = domain.CompletionOf(src.Bool("done")) },
			ToNative:  func(src domain.GenericItem, dst domain.NativeItem) { dst["done"] = src.Complete.Bool() },
		},
	}
}

func (m *MockConnector) IsComplete(item domain.NativeItem) bool {
	return item.Bool("done")
}

// Seed stores an item directly, as if created remotely.
func (m *MockConnector) Seed(item domain.NativeItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := item.Clone()
	if _, ok := cp["modified"]; !ok {
		cp["modified"] = time.Now().Unix()
	}
	m.items[cp.String("id")] = cp
}

// Item returns a copy of a stored item.
func (m *MockConnector) Item(id string) (domain.NativeItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Len returns the number of remote items.
func (m *MockConnector) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MockConnector) FetchChanged(ctx context.Context, since int64) ([]domain.NativeItem, error) {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()

	if m.FetchChangedFn != nil {
		return m.FetchChangedFn(ctx, since)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []domain.NativeItem
	for _, item := range m.items {
		if modified, ok := item["modified"].(int64); ok && modified < since {
			continue
		}
		result = append(result, item.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String("id") < result[j].String("id") })
	return result, nil
}

func (m *MockConnector) Create(ctx context.Context, payload domain.NativeItem) (domain.NativeItem, error) {
	m.mu.Lock()
	m.creates++
	m.mu.Unlock()

	if m.CreateFn != nil {
		return m.CreateFn(ctx, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item := payload.Clone()
	item["id"] = strconv.Itoa(m.nextID)
	item["modified"] = time.Now().Unix()
	m.nextID++
	m.items[item.String("id")] = item
	return item.Clone(), nil
}

func (m *MockConnector) Update(ctx context.Context, id string, payload domain.NativeItem) (domain.NativeItem, error) {
	m.mu.Lock()
	m.updates++
	m.mu.Unlock()

	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, &domain.RemoteWriteError{Service: m.name, Op: "update", ID: id, Status: 404, Message: "not found"}
	}
	for k, v := range payload {
		if k == "id" {
			continue
		}
		item[k] = v
	}
	item["modified"] = time.Now().Unix()
	return item.Clone(), nil
}

func (m *MockConnector) ListScope(ctx context.Context) ([]string, error) {
	if m.ListScopeFn != nil {
		return m.ListScopeFn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockConnector) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.deletes++
	m.mu.Unlock()

	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("%s: item %s: %w", m.name, id, domain.ErrNotFound)
	}
	delete(m.items, id)
	return nil
}

// Calls returns create, update, delete and fetch counts.
func (m *MockConnector) Calls() (creates, updates, deletes, fetches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates, m.deletes, m.fetches
}
