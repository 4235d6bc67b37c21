package sync

import (
	"time"
)

// SyncState is the persisted fragment of configuration the engine threads
// through a push. It is read once at the start and written at most once.
type SyncState struct {
	RemoteProvider    string
	RemoteEndpoint    string
	LastPushTimestamp *time.Time
}

// StateStore loads and persists SyncState. A missing state is not an error:
// LoadState returns a zero state.
type StateStore interface {
	LoadState() (*SyncState, error)
	SaveState(state *SyncState) error
}

// MemoryStateStore keeps state in memory. Commands that must not persist
// anything, and tests, use it.
type MemoryStateStore struct {
	State *SyncState
	Saves int
}

func (m *MemoryStateStore) LoadState() (*SyncState, error) {
	if m.State == nil {
		return &SyncState{}, nil
	}
	copied := *m.State
	return &copied, nil
}

func (m *MemoryStateStore) SaveState(state *SyncState) error {
	copied := *state
	m.State = &copied
	m.Saves++
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
