package store

import (
	"context"
	"sync"
)

// MemoryStore is a goroutine-safe in-memory Store. It offers no durability
// and exists for tests and local development without a bolt file.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	closed      bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string][]byte),
	}
}

// Get retrieves the value stored under key in collection.
func (s *MemoryStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrKeyNotFound
	}
	v, ok := c[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores value under key in collection.
func (s *MemoryStore) Put(ctx context.Context, collection, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string][]byte)
		s.collections[collection] = c
	}
	c[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key from collection.
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if c, ok := s.collections[collection]; ok {
		delete(c, key)
	}
	return nil
}

// GetAll returns every key/value pair in collection.
func (s *MemoryStore) GetAll(ctx context.Context, collection string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string][]byte)
	for k, v := range s.collections[collection] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

// Keys returns every key in collection.
func (s *MemoryStore) Keys(ctx context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.collections[collection]))
	for k := range s.collections[collection] {
		keys = append(keys, k)
	}
	return keys, nil
}

// Clear removes all entries from collection.
func (s *MemoryStore) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.collections, collection)
	return nil
}

// Close marks the store closed; further operations fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
