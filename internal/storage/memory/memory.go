package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirosfoundation/go-httpservice/internal/storage"
)

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 1000

// Store keeps the most recent records in a fixed size ring buffer
type Store struct {
	mu      sync.RWMutex
	records []*storage.Record
	next    int
	full    bool
	closed  bool
}

// NewStore creates a store retaining at most capacity records
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{records: make([]*storage.Record, capacity)}
}

// Append implements storage.EventStore
func (s *Store) Append(_ context.Context, rec *storage.Record) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record requires an id", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	cp := *rec
	s.records[s.next] = &cp
	s.next = (s.next + 1) % len(s.records)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// List implements storage.EventStore
func (s *Store) List(_ context.Context, limit int) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrClosed
	}

	n := s.next
	if s.full {
		n = len(s.records)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]*storage.Record, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.next - 1 - i + len(s.records)) % len(s.records)
		cp := *s.records[idx]
		out = append(out, &cp)
	}
	return out, nil
}

// Len returns the number of retained records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.records)
	}
	return s.next
}

// Ping implements storage.EventStore
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return nil
}

// Close implements storage.EventStore
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
