package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cast"

	"lims-forms/internal/store"
)

// Store is a flat key/value store for serialized drafts.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SQLStore keeps drafts in the _drafts table.
type SQLStore struct {
	s *store.Store
}

func NewSQLStore(s *store.Store) *SQLStore {
	return &SQLStore{s: s}
}

func (d *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ph := d.s.Dialect.Placeholder
	row, err := store.QueryRow(ctx, d.s.DB,
		fmt.Sprintf("SELECT value FROM _drafts WHERE key = %s", ph(1)), key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get draft %s: %w", key, err)
	}
	return []byte(cast.ToString(row["value"])), true, nil
}

func (d *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	if err := d.s.Upsert(ctx, "_drafts", []string{"key", "value"}, key, string(value)); err != nil {
		return fmt.Errorf("put draft %s: %w", key, err)
	}
	return nil
}

func (d *SQLStore) Delete(ctx context.Context, key string) error {
	ph := d.s.Dialect.Placeholder
	if _, err := store.Exec(ctx, d.s.DB,
		fmt.Sprintf("DELETE FROM _drafts WHERE key = %s", ph(1)), key); err != nil {
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	return nil
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
