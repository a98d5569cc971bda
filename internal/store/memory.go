package store

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store with full revision semantics. It backs
// tests and the default development configuration.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Object
	counter uint64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
	}
}

// Get returns the object at key.
func (m *MemoryStore) Get(_ context.Context, key string) (Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	return Object{Data: data, Revision: obj.Revision}, nil
}

// Put writes data under key, guarded by expectedRevision.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, expectedRevision string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[key]
	if expectedRevision == "" {
		if exists {
			return "", ErrConflict
		}
	} else if !exists || current.Revision != expectedRevision {
		return "", ErrConflict
	}

	m.counter++
	revision := strconv.FormatUint(m.counter, 10)
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = Object{Data: stored, Revision: revision}
	return revision, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
