package history

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/witnz/rowdiff/internal/codec"
	"github.com/witnz/rowdiff/internal/results"
	"github.com/witnz/rowdiff/internal/tree"
)

// KeyPrefix namespaces snapshot keys in the backend.
const KeyPrefix = "results."

// Backend is the byte-oriented persistence layer. Get returns nil, nil
// when the key is absent.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

func StorageKey(name string) string {
	return KeyPrefix + name
}

// Store keeps the last Table seen for every query name.
//
// The scheduler never runs two cycles for one name at once, but the backend
// is shared by all names, so reads and writes still take a lock per storage
// key.
type Store struct {
	backend Backend
	locks   sync.Map
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) lock(key string) func() {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Get returns the stored snapshot for name. found is false on first
// observation of a name.
func (s *Store) Get(name string) (snap results.Snapshot, found bool, err error) {
	key := StorageKey(name)
	unlock := s.lock(key)
	defer unlock()

	return s.get(name, key)
}

func (s *Store) get(name, key string) (results.Snapshot, bool, error) {
	data, err := s.backend.Get(key)
	if err != nil {
		return results.Snapshot{}, false, NewUnavailableError(name, "get", err)
	}
	if data == nil {
		return results.Snapshot{}, false, nil
	}

	snap, err := codec.DecodeSnapshot(data)
	if err != nil {
		return results.Snapshot{}, false, fmt.Errorf("failed to decode history for %s: %w", name, err)
	}
	if snap.Name != name {
		return results.Snapshot{}, false, fmt.Errorf("failed to decode history for %s: %w",
			name, tree.Malformed(codec.FieldName, "stored under %q but named %q", name, snap.Name))
	}

	return snap, true, nil
}

// Put replaces the stored table for name and bumps the epoch. A stored
// record that no longer decodes is replaced and the epoch restarts at 1.
func (s *Store) Put(name string, t results.Table, now time.Time) (results.Snapshot, error) {
	key := StorageKey(name)
	unlock := s.lock(key)
	defer unlock()

	prev, _, err := s.get(name, key)
	if err != nil && IsUnavailable(err) {
		return results.Snapshot{}, err
	}

	snap := results.Snapshot{
		Name:     name,
		Epoch:    prev.Epoch + 1,
		UnixTime: now.Unix(),
		Results:  results.NewTable(t...),
	}

	data, err := codec.EncodeSnapshot(snap)
	if err != nil {
		return results.Snapshot{}, fmt.Errorf("failed to encode history for %s: %w", name, err)
	}

	if err := s.backend.Put(key, data); err != nil {
		return results.Snapshot{}, NewUnavailableError(name, "put", err)
	}

	return snap, nil
}

// Delete forgets name, so its next cycle is treated as a first run.
func (s *Store) Delete(name string) error {
	key := StorageKey(name)
	unlock := s.lock(key)
	defer unlock()

	if err := s.backend.Delete(key); err != nil {
		return NewUnavailableError(name, "delete", err)
	}
	return nil
}

// Names lists every query name with stored history.
func (s *Store) Names() ([]string, error) {
	keys, err := s.backend.Keys(KeyPrefix)
	if err != nil {
		return nil, NewUnavailableError("", "list", err)
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, KeyPrefix)
	}
	return names, nil
}
