package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"expenses/internal/kv"
)

// Store keeps blobs in a process-local map. Values are copied on the way in
// and out so callers cannot alias the stored bytes.
type Store struct {
	mu    sync.Mutex
	items map[string][]byte
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: map[string][]byte{}}
}

// NewFromDir seeds the store from regular files in base; each file name is a
// key and its content the value. A missing directory yields an empty store.
func NewFromDir(base string) *Store {
	s := New()
	entries, err := os.ReadDir(base)
	if err != nil {
		return s
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(base, e.Name()))
		if err != nil {
			continue
		}
		s.items[e.Name()] = data
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), value...)
	return nil
}

// Keys returns the number of stored keys.
func (s *Store) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
