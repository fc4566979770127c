package stream

import (
	"context"
	"sync"
)

// MemoryStore is an in-process StateStore for single-node deployments
// and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[string]*State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[string]*State)}
}

func stateKey(tenantID, streamID string) string {
	return tenantID + "/" + streamID
}

func (m *MemoryStore) Get(_ context.Context, tenantID, streamID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[stateKey(tenantID, streamID)]
	if !ok {
		return nil, ErrStateNotFound
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, state *State, expectedRevision int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := stateKey(state.TenantID, state.StreamID)
	current, ok := m.streams[key]
	switch {
	case !ok && expectedRevision != 0:
		return ErrConflict
	case ok && current.Revision != expectedRevision:
		return ErrConflict
	}
	stored := state.Clone()
	stored.Revision = expectedRevision + 1
	m.streams[key] = stored
	state.Revision = stored.Revision
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, tenantID, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, stateKey(tenantID, streamID))
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*State
	for _, st := range m.streams {
		if st.Phase == PhaseActive {
			out = append(out, st.Clone())
		}
	}
	return out, nil
}
