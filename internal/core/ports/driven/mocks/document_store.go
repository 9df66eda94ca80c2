package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

var (
	_ driven.DocumentStore    = (*MockDocumentStore)(nil)
	_ driven.DocumentDatabase = (*MockDocumentDatabase)(nil)
)

// MockDocumentStore is an in-memory DocumentStore honouring revisions.
type MockDocumentStore struct {
	name string
	mu   sync.RWMutex
	docs map[string]*domain.Document
	puts int

	// Custom behavior hooks (optional)
	GetFn    func(key string) (*domain.Document, error)
	PutFn    func(key string, body []byte, rev string) (string, error)
	RemoveFn func(key, rev string) error
	ListFn   func(includeBody bool) ([]*domain.Document, error)
}

// NewMockDocumentStore creates an empty named store.
func NewMockDocumentStore(name string) *MockDocumentStore {
	return &MockDocumentStore{
		name: name,
		docs: make(map[string]*domain.Document),
	}
}

func (m *MockDocumentStore) Name() string { return m.name }

func (m *MockDocumentStore) Get(ctx context.Context, key string) (*domain.Document, error) {
	if m.GetFn != nil {
		return m.GetFn(key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MockDocumentStore) Put(ctx context.Context, key string, body []byte, rev string) (string, error) {
	if m.PutFn != nil {
		return m.PutFn(key, body, rev)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := ""
	if doc, ok := m.docs[key]; ok {
		current = doc.Rev
	}
	if rev != current {
		return "", domain.ErrConflict
	}
	next := domain.NextRevision(current)
	m.docs[key] = &domain.Document{Key: key, Rev: next, Body: append([]byte(nil), body...)}
	m.puts++
	return next, nil
}

func (m *MockDocumentStore) Remove(ctx context.Context, key, rev string) error {
	if m.RemoveFn != nil {
		return m.RemoveFn(key, rev)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[key]
	if !ok {
		return domain.ErrNotFound
	}
	if doc.Rev != rev {
		return domain.ErrConflict
	}
	delete(m.docs, key)
	return nil
}

func (m *MockDocumentStore) List(ctx context.Context, includeBody bool) ([]*domain.Document, error) {
	if m.ListFn != nil {
		return m.ListFn(includeBody)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		cp := &domain.Document{Key: doc.Key, Rev: doc.Rev}
		if includeBody {
			cp.Body = doc.Body
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (m *MockDocumentStore) Clear(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.docs)
	m.docs = make(map[string]*domain.Document)
	return n, nil
}

// Len returns the number of stored documents.
func (m *MockDocumentStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Has reports whether key is stored.
func (m *MockDocumentStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[key]
	return ok
}

// Puts returns the number of successful writes.
func (m *MockDocumentStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// MockDocumentDatabase hands out MockDocumentStores by name.
type MockDocumentDatabase struct {
	mu     sync.Mutex
	stores map[string]*MockDocumentStore

	StoreFn func(name string) (driven.DocumentStore, error)
	PingFn  func() error
}

// NewMockDocumentDatabase creates an empty database.
func NewMockDocumentDatabase() *MockDocumentDatabase {
	return &MockDocumentDatabase{
		stores: make(map[string]*MockDocumentStore),
	}
}

func (m *MockDocumentDatabase) Store(ctx context.Context, name string) (driven.DocumentStore, error) {
	if m.StoreFn != nil {
		return m.StoreFn(name)
	}
	return m.Get(name), nil
}

// Get returns the concrete mock store, creating it if needed.
func (m *MockDocumentDatabase) Get(name string) *MockDocumentStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[name]
	if !ok {
		s = NewMockDocumentStore(name)
		m.stores[name] = s
	}
	return s
}

func (m *MockDocumentDatabase) Names(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.stores))
	for name, s := range m.stores {
		if s.Len() > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockDocumentDatabase) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn()
	}
	return nil
}

func (m *MockDocumentDatabase) Close() error { return nil }
