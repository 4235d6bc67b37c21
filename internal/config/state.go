package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openmined/journalsync/internal/sync"
	"github.com/openmined/journalsync/internal/utils"
)

// FileStateStore persists SyncState inside the config file. Saving rewrites
// remote.provider, remote.url and sync.lastPushTimestamp and leaves every
// other key as it was.
type FileStateStore struct {
	Path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{Path: path}
}

type stateFile struct {
	Remote struct {
		Provider string `json:"provider"`
		URL      string `json:"url"`
	} `json:"remote"`
	Sync struct {
		LastPushTimestamp string `json:"lastPushTimestamp"`
	} `json:"sync"`
}

func (s *FileStateStore) LoadState() (*sync.SyncState, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return &sync.SyncState{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var file stateFile
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse state %s: %w", s.Path, err)
		}
	}

	state := &sync.SyncState{
		RemoteProvider: file.Remote.Provider,
		RemoteEndpoint: file.Remote.URL,
	}
	if raw := file.Sync.LastPushTimestamp; raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("parse sync.lastPushTimestamp %q: %w", raw, err)
		}
		ts = ts.UTC()
		state.LastPushTimestamp = &ts
	}
	return state, nil
}

func (s *FileStateStore) SaveState(state *sync.SyncState) error {
	doc := map[string]any{}
	data, err := os.ReadFile(s.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read state: %w", err)
	case len(bytes.TrimSpace(data)) > 0:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse state %s: %w", s.Path, err)
		}
	}

	remote := section(doc, "remote")
	if state.RemoteProvider != "" {
		remote["provider"] = state.RemoteProvider
	}
	if state.RemoteEndpoint != "" {
		remote["url"] = state.RemoteEndpoint
	}

	syncSection := section(doc, "sync")
	if state.LastPushTimestamp != nil {
		syncSection["lastPushTimestamp"] = state.LastPushTimestamp.UTC().Format(time.RFC3339Nano)
	} else {
		delete(syncSection, "lastPushTimestamp")
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	out = append(out, '\n')

	return utils.WriteFileAtomic(s.Path, bytes.NewReader(out), 0o600)
}

// section returns doc[name] as an object, replacing any non-object value.
func section(doc map[string]any, name string) map[string]any {
	if m, ok := doc[name].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	doc[name] = m
	return m
}

var _ sync.StateStore = (*FileStateStore)(nil)
