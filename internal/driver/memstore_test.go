package driver

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/archonops/supervisor/internal/model"
)

// memStore is a minimal in-process statestore.Store used only by this
// package's tests, mirroring the JSON-round-trip semantics (including
// Backfill-on-load) of the real backends without needing Redis or SQL.
type memStore struct {
	mu    sync.Mutex
	blob  []byte
	saved int
}

func newMemStore(initial *model.SupervisorState) *memStore {
	s := &memStore{}
	if initial != nil {
		b, err := json.Marshal(initial)
		if err != nil {
			panic(err)
		}
		s.blob = b
	}
	return s
}

func (s *memStore) Load(_ context.Context) (*model.SupervisorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blob == nil {
		return nil, nil
	}
	var st model.SupervisorState
	if err := json.Unmarshal(s.blob, &st); err != nil {
		return nil, err
	}
	st.Backfill()
	return &st, nil
}

func (s *memStore) Save(_ context.Context, st *model.SupervisorState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blob = b
	s.saved++
	return nil
}

func (s *memStore) Exists(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob != nil, nil
}
