package storage

import (
	"context"
	"sync"

	"firmadoc/internal/domain"
)

// MemoryBlobStore backs no-db mode and tests.
type MemoryBlobStore struct {
	mu      sync.RWMutex
	objects map[string]StoredObject
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{objects: make(map[string]StoredObject)}
}

func (m *MemoryBlobStore) Put(ctx context.Context, locator string, obj StoredObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := obj
	stored.Content = append([]byte(nil), obj.Content...)
	m.objects[locator] = stored
	return nil
}

func (m *MemoryBlobStore) Get(ctx context.Context, locator string) (*StoredObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[locator]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	out := obj
	out.Content = append([]byte(nil), obj.Content...)
	return &out, nil
}
