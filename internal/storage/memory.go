package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps objects in process memory. It is used by tests and by
// local runs configured with the memory driver.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	copied := append([]byte(nil), data...)

	s.mu.Lock()
	s.objects[key] = memoryObject{data: copied, contentType: contentType}
	s.mu.Unlock()

	return "memory://" + key, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (s *MemoryStore) ContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	return obj.contentType, ok
}
