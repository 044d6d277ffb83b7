package stor

import (
	"sync"

	"github.com/openline-voip/calld/pkg/model"
)

// InMemoryTransferStor is a map-backed TransferStor used in tests.
type InMemoryTransferStor struct {
	mu        sync.Mutex
	transfers map[string]model.Transfer
}

func NewInMemoryTransferStor() *InMemoryTransferStor {
	return &InMemoryTransferStor{
		transfers: make(map[string]model.Transfer),
	}
}

func (s *InMemoryTransferStor) Get(id string) (*model.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transfers[id]
	if !ok {
		return nil, ErrNotFound
	}

	return &t, nil
}

func (s *InMemoryTransferStor) Upsert(t *model.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transfers[t.ID] = *t

	return nil
}

func (s *InMemoryTransferStor) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.transfers, id)

	return nil
}

func (s *InMemoryTransferStor) List() ([]model.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfers := make([]model.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		transfers = append(transfers, t)
	}

	return transfers, nil
}
