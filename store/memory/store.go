package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/entitle/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store keeps every key in process memory. Useful for tests and for hosts
// that persist elsewhere.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

func New() *Store {
	return &Store{
		values: make(map[string]string),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", store.ErrStoreClosed
	}
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	return "", store.ErrNotFound
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	s.values[key] = value
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	delete(s.values, key)
	return nil
}

func (s *Store) ListKeys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, store.ErrStoreClosed
	}
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Store management
func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
