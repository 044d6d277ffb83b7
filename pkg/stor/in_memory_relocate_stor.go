package stor

import (
	"sync"

	"github.com/openline-voip/calld/pkg/model"
)

// InMemoryRelocateStor is a map-backed RelocateStor used in tests.
type InMemoryRelocateStor struct {
	mu        sync.Mutex
	relocates map[string]model.Relocate
}

func NewInMemoryRelocateStor() *InMemoryRelocateStor {
	return &InMemoryRelocateStor{
		relocates: make(map[string]model.Relocate),
	}
}

func (s *InMemoryRelocateStor) Get(id string) (*model.Relocate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.relocates[id]
	if !ok {
		return nil, ErrNotFound
	}

	return &r, nil
}

func (s *InMemoryRelocateStor) Upsert(r *model.Relocate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.relocates[r.ID] = *r

	return nil
}

func (s *InMemoryRelocateStor) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.relocates, id)

	return nil
}

func (s *InMemoryRelocateStor) List() ([]model.Relocate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	relocates := make([]model.Relocate, 0, len(s.relocates))
	for _, r := range s.relocates {
		relocates = append(relocates, r)
	}

	return relocates, nil
}
