package consensus

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/witnz/rowdiff/internal/history"
	"github.com/witnz/rowdiff/internal/storage"
)

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "rowdiff-consensus-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	tmpfile.Close()
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	store, err := storage.New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func applyCommand(t *testing.T, fsm *FSM, cmd *Command) interface{} {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Failed to marshal command: %v", err)
	}
	return fsm.Apply(&raft.Log{Data: data})
}

type bufferSink struct {
	bytes.Buffer
	cancelled bool
}

func (s *bufferSink) ID() string    { return "test" }
func (s *bufferSink) Cancel() error { s.cancelled = true; return nil }
func (s *bufferSink) Close() error  { return nil }

func TestFSMApply(t *testing.T) {
	store := newTestStorage(t)
	fsm := NewFSM(store)

	t.Run("put", func(t *testing.T) {
		result := applyCommand(t, fsm, &Command{
			Type:      CommandPut,
			Key:       "results.processes",
			Value:     []byte(`{"name":"processes"}`),
			Timestamp: time.Now(),
		})
		if result != nil {
			t.Fatalf("Apply failed: %v", result)
		}

		got, err := store.Get("results.processes")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != `{"name":"processes"}` {
			t.Errorf("Expected stored value, got %q", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		result := applyCommand(t, fsm, &Command{Type: CommandDelete, Key: "results.processes"})
		if result != nil {
			t.Fatalf("Apply failed: %v", result)
		}

		got, err := store.Get("results.processes")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got != nil {
			t.Errorf("Expected key to be gone, got %q", got)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		result := applyCommand(t, fsm, &Command{Type: "bogus", Key: "results.x"})
		if _, ok := result.(error); !ok {
			t.Errorf("Expected error for unknown command, got %v", result)
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		result := fsm.Apply(&raft.Log{Data: []byte("not json")})
		if _, ok := result.(error); !ok {
			t.Errorf("Expected error for invalid payload, got %v", result)
		}
	})
}

func TestFSMSnapshotRestore(t *testing.T) {
	source := history.NewMemoryBackend()
	source.Put("results.a", []byte("one"))
	source.Put("results.b", []byte("two"))
	source.Put("other.c", []byte("ignored"))

	snapshot, err := NewFSM(source).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	defer snapshot.Release()

	sink := &bufferSink{}
	if err := snapshot.Persist(sink); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if sink.cancelled {
		t.Fatal("Expected sink not to be cancelled")
	}

	target := history.NewMemoryBackend()
	target.Put("results.stale", []byte("old"))

	if err := NewFSM(target).Restore(io.NopCloser(&sink.Buffer)); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	keys, _ := target.Keys(history.KeyPrefix)
	if len(keys) != 2 || keys[0] != "results.a" || keys[1] != "results.b" {
		t.Fatalf("Expected restored keys [results.a results.b], got %v", keys)
	}

	v, _ := target.Get("results.b")
	if string(v) != "two" {
		t.Errorf("Expected value two, got %q", v)
	}

	if v, _ := target.Get("other.c"); v != nil {
		t.Errorf("Expected non-history key to stay out of the snapshot, got %q", v)
	}
}

func TestFSMRestoreInvalid(t *testing.T) {
	fsm := NewFSM(history.NewMemoryBackend())
	err := fsm.Restore(io.NopCloser(bytes.NewBufferString("{")))
	if err == nil {
		t.Error("Expected error restoring truncated snapshot")
	}
}
