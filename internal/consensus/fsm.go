package consensus

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
	"github.com/witnz/rowdiff/internal/history"
)

// FSM applies replicated commands to the node's local backend.
type FSM struct {
	mu      sync.RWMutex
	backend history.Backend
}

func NewFSM(backend history.Backend) *FSM {
	return &FSM{
		backend: backend,
	}
}

func (f *FSM) Apply(log *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	switch cmd.Type {
	case CommandPut:
		return f.backend.Put(cmd.Key, cmd.Value)
	case CommandDelete:
		return f.backend.Delete(cmd.Key)
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	keys, err := f.backend.Keys(history.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	data := snapshotData{Entries: make([]snapshotEntry, 0, len(keys))}
	for _, k := range keys {
		v, err := f.backend.Get(k)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", k, err)
		}
		if v == nil {
			continue
		}
		data.Entries = append(data.Entries, snapshotEntry{Key: k, Value: v})
	}

	return &fsmSnapshot{data: data}, nil
}

// Restore replaces every stored snapshot with the contents of rc.
func (f *FSM) Restore(rc io.ReadCloser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer rc.Close()

	var data snapshotData
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	existing, err := f.backend.Keys(history.KeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	for _, k := range existing {
		if err := f.backend.Delete(k); err != nil {
			return fmt.Errorf("failed to clear %s: %w", k, err)
		}
	}

	for _, e := range data.Entries {
		if err := f.backend.Put(e.Key, e.Value); err != nil {
			return fmt.Errorf("failed to restore %s: %w", e.Key, err)
		}
	}

	return nil
}

type fsmSnapshot struct {
	data snapshotData
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {
}
