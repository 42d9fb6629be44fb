package journal

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrPersistence   = errors.New("journal persistence failed")
	ErrEntryNotFound = errors.New("journal entry not found")
)

// Store holds a runner's whole journal. Writes replace the collection.
type Store interface {
	Load(ctx context.Context, runnerID string) ([]Entry, error)
	Save(ctx context.Context, runnerID string, entries []Entry) error
}

type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string][]Entry{}}
}

func (m *MemoryStore) Load(ctx context.Context, runnerID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries[runnerID]...), nil
}

func (m *MemoryStore) Save(ctx context.Context, runnerID string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[runnerID] = append([]Entry(nil), entries...)
	return nil
}
