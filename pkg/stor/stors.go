package stor

import (
	"github.com/pkg/errors"

	"github.com/openline-voip/calld/pkg/model"
)

// ErrNotFound is returned when a record does not exist in the store.
var ErrNotFound = errors.New("stor: record not found")

// TransferStor is the durable store for in-flight transfers. The production
// implementation lives inside the telephony engine's global variable space
// so that a calld restart loses nothing.
type TransferStor interface {
	Get(id string) (*model.Transfer, error)
	Upsert(t *model.Transfer) error
	Remove(id string) error
	List() ([]model.Transfer, error)
}

// RelocateStor is the durable store for in-flight relocates.
type RelocateStor interface {
	Get(id string) (*model.Relocate, error)
	Upsert(r *model.Relocate) error
	Remove(id string) error
	List() ([]model.Relocate, error)
}

// HistoryStor records finished transfers and relocates.
type HistoryStor interface {
	AddEntry(entry *HistoryEntry) error
	ListRecent(limit int) ([]HistoryEntry, error)
}
