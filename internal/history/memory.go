package history

import (
	"context"
	"sync"
)

// MemoryStore keeps the history in process memory
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyEntries(m.entries), nil
}

func (m *MemoryStore) Save(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	m.entries = copyEntries(entries)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
