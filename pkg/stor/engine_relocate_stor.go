package stor

import (
	"encoding/json"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/openline-voip/calld/pkg/engine"
	"github.com/openline-voip/calld/pkg/model"
)

const (
	relocateKeyPrefix = "CALLD_RELOCATE_"
	relocateIndexKey  = "CALLD_RELOCATES"
)

// EngineRelocateStor persists relocates in the engine's global variable
// space, mirroring EngineTransferStor's per-record key plus index layout.
type EngineRelocateStor struct {
	vars engine.GlobalVarClient
}

func NewEngineRelocateStor(vars engine.GlobalVarClient) *EngineRelocateStor {
	return &EngineRelocateStor{vars: vars}
}

func (s *EngineRelocateStor) Get(id string) (*model.Relocate, error) {
	blob, err := s.vars.GetGlobalVar(relocateKeyPrefix + id)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var r model.Relocate
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, errors.Wrapf(err, "corrupted relocate record %s", id)
	}

	return &r, nil
}

func (s *EngineRelocateStor) Upsert(r *model.Relocate) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return err
	}

	if err := s.vars.SetGlobalVar(relocateKeyPrefix+r.ID, string(blob)); err != nil {
		return err
	}

	ids, err := s.readIndex()
	if err != nil {
		return err
	}

	for _, id := range ids {
		if id == r.ID {
			return nil
		}
	}

	return s.writeIndex(append(ids, r.ID))
}

func (s *EngineRelocateStor) Remove(id string) error {
	if err := s.vars.DeleteGlobalVar(relocateKeyPrefix + id); err != nil && !errors.Is(err, engine.ErrNotFound) {
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

func (s *EngineRelocateStor) List() ([]model.Relocate, error) {
	ids, err := s.readIndex()
	if err != nil {
		return nil, err
	}

	relocates := make([]model.Relocate, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(id)
		if err != nil {
			log.Warnf("skipping relocate %s while listing: %v", id, err)
			continue
		}
		relocates = append(relocates, *r)
	}

	return relocates, nil
}

func (s *EngineRelocateStor) readIndex() ([]string, error) {
	blob, err := s.vars.GetGlobalVar(relocateIndexKey)
	if err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(blob), &ids); err != nil {
		log.Warnf("corrupted relocate index, resetting: %v", err)
		return nil, nil
	}

	return ids, nil
}

func (s *EngineRelocateStor) writeIndex(ids []string) error {
	blob, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	return s.vars.SetGlobalVar(relocateIndexKey, string(blob))
}
