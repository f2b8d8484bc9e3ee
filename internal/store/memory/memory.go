package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/linkup/internal/domain"
)

// Store keeps session records in process memory. It is the default backend of
// the local server and of a remote server started without redis.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.Record // name -> record
}

// NewStore creates an empty memory store
func NewStore() *Store {
	return &Store{
		records: make(map[string]*domain.Record),
	}
}

// Get retrieves a record by name
func (s *Store) Get(_ context.Context, name string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Put adds or replaces a record
func (s *Store) Put(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.Name] = rec.Clone()
	return nil
}

// PutIfAbsent adds a record only when the name is free
func (s *Store) PutIfAbsent(_ context.Context, rec *domain.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Name]; ok {
		return false, nil
	}
	s.records[rec.Name] = rec.Clone()
	return true, nil
}

// Delete removes a record
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, name)
	return nil
}

// List returns all records sorted by name
func (s *Store) List(_ context.Context) ([]*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Count returns the number of records
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }
