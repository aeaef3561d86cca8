// Package statestore implements the State Store namespace: atomic get/set
// of the single supervisor-state snapshot (spec.md §6, §3 invariant 3).
package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/archonops/supervisor/internal/model"
)

// Store is the State Store contract. Load/Save operate on the single
// snapshot key; callers are responsible for the read-then-write ordering
// and the audit append that must follow every Save (invariant 3).
type Store interface {
	// Load returns (nil, nil) if no state has been initialized yet.
	Load(ctx context.Context) (*model.SupervisorState, error)
	// Save overwrites the snapshot in full.
	Save(ctx context.Context, s *model.SupervisorState) error
	// Exists reports whether a snapshot has been initialized, used by
	// init-state to refuse double-initialization.
	Exists(ctx context.Context) (bool, error)
}

func marshalState(s *model.SupervisorState) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return b, nil
}

func unmarshalState(b []byte) (*model.SupervisorState, error) {
	var s model.SupervisorState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	s.Backfill()
	return &s, nil
}
