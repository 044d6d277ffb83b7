package stor

import (
	"encoding/json"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/model"
)

const (
	transferKeyPrefix = "CALLD_TRANSFER_"
	transferIndexKey  = "CALLD_TRANSFERS"
)

// EngineTransferStor persists transfers as JSON blobs in the engine's global
// variable space, one blob per record plus a JSON array of live IDs under a
// single index key (the engine store has no list-keys primitive).
type EngineTransferStor struct {
	vars engine.GlobalVarClient
}

func NewEngineTransferStor(vars engine.GlobalVarClient) *EngineTransferStor {
	return &EngineTransferStor{vars: vars}
}

func (s *EngineTransferStor) Get(id string) (*model.Transfer, error) {
	blob, err := s.vars.GetGlobalVar(transferKeyPrefix + id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var t model.Transfer
	if err := json.Unmarshal([]byte(blob), &t); err != nil {
		return nil, errors.Wrapf(err, "corrupted transfer record %s", id)
	}

	return &t, nil
}

func (s *EngineTransferStor) Upsert(t *model.Transfer) error {
	blob, err := json.Marshal(t)
	if err != nil {
		return err
	}

	if err := s.vars.SetGlobalVar(transferKeyPrefix+t.ID, string(blob)); err != nil {
		return err
	}

	ids, err := s.readIndex()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if id == t.ID {
			return nil
		}
	}

	return s.writeIndex(append(ids, t.ID))
}

func (s *EngineTransferStor) Remove(id string) error {
	if err := s.vars.DeleteGlobalVar(transferKeyPrefix + id); err != nil && !errors.Is(err, engine.ErrNotFound) {
		return err
	}

	ids, err := s.readIndex()
	if err != nil {
		return err
	}

	kept := ids[:0]
	for _, existing := range ids {
		if existing != id {
			kept = append(kept, existing)
		}
	}

	return s.writeIndex(kept)
}

// List returns all live transfers. An index entry whose record is missing or
// unparseable is skipped, never fatal to the whole listing.
func (s *EngineTransferStor) List() ([]model.Transfer, error) {
	ids, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	transfers := make([]model.Transfer, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(id)
		if err != nil {
			log.Warnf("skipping transfer %s while listing: %v", id, err)
			continue
		}
		transfers = append(transfers, *t)
	}

	return transfers, nil
}

func (s *EngineTransferStor) readIndex() ([]string, error) {
	blob, err := s.vars.GetGlobalVar(transferIndexKey)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(blob), &ids); err != nil {
		log.Warnf("corrupted transfer index, resetting: %v", err)
		return nil, nil
	}

	return ids, nil
}

func (s *EngineTransferStor) writeIndex(ids []string) error {
	blob, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	return s.vars.SetGlobalVar(transferIndexKey, string(blob))
}
