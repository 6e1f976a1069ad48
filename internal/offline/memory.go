package offline

import (
	"context"
	"slices"
	"sync"

	"github.com/patrickmn/go-cache"
)

// MemoryStorage keeps stores in process memory. Each store is a go-cache
// instance without expiration or janitor; stores only go away on Delete.
type MemoryStorage struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
	order  []string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{stores: make(map[string]*memoryStore)}
}

func (m *MemoryStorage) Open(_ context.Context, name string) (Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stores[name]; ok {
		return s, nil
	}
	s := &memoryStore{name: name, items: cache.New(cache.NoExpiration, 0)}
	m.stores[name] = s
	m.order = append(m.order, name)
	return s, nil
}

func (m *MemoryStorage) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order), nil
}

func (m *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[name]
	if !ok {
		return false, nil
	}
	s.items.Flush()
	delete(m.stores, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	return true, nil
}

func (m *MemoryStorage) Match(ctx context.Context, key string) (*Entry, bool, error) {
	m.mu.RLock()
	stores := make([]*memoryStore, 0, len(m.order))
	for _, name := range m.order {
		stores = append(stores, m.stores[name])
	}
	m.mu.RUnlock()

	for _, s := range stores {
		if e, ok, _ := s.Match(ctx, key); ok {
			return e, true, nil
		}
	}
	return nil, false, nil
}

func (m *MemoryStorage) Close() error { return nil }

type memoryStore struct {
	name  string
	mu    sync.Mutex // serialises PutAll against Put
	items *cache.Cache
}

func (s *memoryStore) Name() string { return s.name }

func (s *memoryStore) Match(_ context.Context, key string) (*Entry, bool, error) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.(*Entry), true, nil
}

func (s *memoryStore) Put(_ context.Context, entry *Entry) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Set(entry.Key, entry, cache.NoExpiration)
	return nil
}

func (s *memoryStore) PutAll(_ context.Context, entries []*Entry) error {
	for _, e := range entries {
		if err := checkEntry(e); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.items.Set(e.Key, e, cache.NoExpiration)
	}
	return nil
}
