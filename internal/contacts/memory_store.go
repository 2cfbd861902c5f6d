package contacts

import (
	"context"
	"sync"
)

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Contact
	order []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Contact{}}
}

func (s *MemoryStore) List(_ context.Context) ([]Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Contact, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key])
	}
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, contact Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[contact.Key]; !ok {
		s.order = append(s.order, contact.Key)
	}
	s.items[contact.Key] = contact
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	for i, existing := range s.order {
		if existing == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}
