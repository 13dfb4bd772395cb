package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/witnz/rowdiff/internal/codec"
	"github.com/witnz/rowdiff/internal/history"
	"github.com/witnz/rowdiff/internal/logitem"
	"github.com/witnz/rowdiff/internal/results"
	"github.com/witnz/rowdiff/internal/source"
	"github.com/witnz/rowdiff/internal/tree"
)

type recordingSink struct {
	mu    sync.Mutex
	lines map[string][][]byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{lines: make(map[string][][]byte)}
}

func (s *recordingSink) Deliver(_ context.Context, name string, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[name] = append(s.lines[name], append([]byte(nil), line...))
	return nil
}

func (s *recordingSink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines[name])
}

type flakyBackend struct {
	*history.MemoryBackend
	fail atomic.Bool
}

func (b *flakyBackend) Get(key string) ([]byte, error) {
	if b.fail.Load() {
		return nil, errors.New("disk unplugged")
	}
	return b.MemoryBackend.Get(key)
}

type tickingClock struct {
	n atomic.Int64
}

func (c *tickingClock) Now() time.Time {
	return time.Unix(1410835444+c.n.Add(1), 0)
}

func row(pid, name string) results.Row {
	return results.MustRow(map[string]string{"pid": pid, "name": name})
}

type fixture struct {
	tables  map[string]results.Table
	backend *flakyBackend
	sink    *recordingSink
	cycle   *Cycle
	mu      sync.Mutex
}

func newFixture(t *testing.T, logEmpty bool) *fixture {
	t.Helper()
	f := &fixture{
		tables:  make(map[string]results.Table),
		backend: &flakyBackend{MemoryBackend: history.NewMemoryBackend()},
		sink:    newRecordingSink(),
	}

	src := source.Func(func(_ context.Context, name, _ string) (results.Table, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		tbl, ok := f.tables[name]
		if !ok {
			return nil, errors.New("query failed")
		}
		return results.NewTable(tbl...), nil
	})

	cycle, err := NewCycle(&CycleConfig{
		Source:         src,
		History:        history.New(f.backend),
		Sink:           f.sink,
		Clock:          logitem.FixedClock(time.Unix(1410835444, 0)),
		HostIdentifier: "host-1",
		LogEmptyDiffs:  logEmpty,
	})
	if err != nil {
		t.Fatalf("NewCycle failed: %v", err)
	}
	f.cycle = cycle
	return f
}

func (f *fixture) set(name string, rows ...results.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = results.NewTable(rows...)
}

func TestCycleDifferential(t *testing.T) {
	f := newFixture(t, false)
	q := Query{Name: "processes", Mode: ModeDifferential}
	ctx := context.Background()

	t.Run("first run reports everything as added", func(t *testing.T) {
		f.set("processes", row("1", "a"), row("2", "b"))
		item, err := f.cycle.Run(ctx, q)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		diff, ok := item.Diff()
		if !ok {
			t.Fatal("Expected diff payload")
		}
		if len(diff.Added) != 2 || len(diff.Removed) != 0 {
			t.Errorf("Expected 2 added 0 removed, got %d/%d", len(diff.Added), len(diff.Removed))
		}
		if item.HostIdentifier() != "host-1" || item.UnixTime() != 1410835444 {
			t.Errorf("Unexpected metadata: %s %d", item.HostIdentifier(), item.UnixTime())
		}
	})

	t.Run("second run reports the change", func(t *testing.T) {
		f.set("processes", row("2", "b"), row("3", "c"))
		item, err := f.cycle.Run(ctx, q)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		diff, _ := item.Diff()
		want := results.Diff{
			Added:   results.NewTable(row("3", "c")),
			Removed: results.NewTable(row("1", "a")),
		}
		if !diff.Equal(want) {
			t.Errorf("Expected %v, got %v", want, diff)
		}
	})

	t.Run("unchanged results emit nothing", func(t *testing.T) {
		item, err := f.cycle.Run(ctx, q)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if item != nil {
			t.Error("Expected no log item for empty diff")
		}
	})

	if got := f.sink.count("processes"); got != 2 {
		t.Fatalf("Expected 2 delivered lines, got %d", got)
	}

	decoded, err := codec.DecodeLogItem(f.sink.lines["processes"][1])
	if err != nil {
		t.Fatalf("DecodeLogItem failed: %v", err)
	}
	if decoded.Name() != "processes" || decoded.Kind() != logitem.KindDiff {
		t.Errorf("Unexpected decoded item: %s %s", decoded.Name(), decoded.Kind())
	}

	snap, found, err := history.New(f.backend).Get("processes")
	if err != nil || !found {
		t.Fatalf("Get failed: found=%v err=%v", found, err)
	}
	if snap.Epoch != 3 {
		t.Errorf("Expected epoch 3, got %d", snap.Epoch)
	}
}

func TestCycleLogEmptyDiffs(t *testing.T) {
	f := newFixture(t, true)
	q := Query{Name: "users"}
	f.set("users", row("1", "root"))

	for i := 0; i < 2; i++ {
		if _, err := f.cycle.Run(context.Background(), q); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	}

	if got := f.sink.count("users"); got != 2 {
		t.Fatalf("Expected 2 delivered lines, got %d", got)
	}
	item, err := codec.DecodeLogItem(f.sink.lines["users"][1])
	if err != nil {
		t.Fatalf("DecodeLogItem failed: %v", err)
	}
	diff, _ := item.Diff()
	if !diff.Empty() {
		t.Errorf("Expected empty diff, got %v", diff)
	}
}

func TestCycleSnapshot(t *testing.T) {
	f := newFixture(t, false)
	q := Query{Name: "mounts", Mode: ModeSnapshot}
	f.set("mounts", row("1", "a"), row("1", "a"))

	for i := 0; i < 2; i++ {
		item, err := f.cycle.Run(context.Background(), q)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		tbl, ok := item.Snapshot()
		if !ok {
			t.Fatal("Expected snapshot payload")
		}
		if len(tbl) != 2 {
			t.Errorf("Expected both duplicate rows, got %d", len(tbl))
		}
	}

	if got := f.sink.count("mounts"); got != 2 {
		t.Errorf("Expected a line per snapshot cycle, got %d", got)
	}
}

func TestCycleFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("source error leaves history alone", func(t *testing.T) {
		f := newFixture(t, false)
		_, err := f.cycle.Run(ctx, Query{Name: "missing"})
		ce := AsCycleError(err)
		if ce == nil || ce.Op != "run query" {
			t.Fatalf("Expected run query CycleError, got %v", err)
		}
		if keys, _ := f.backend.Keys(history.KeyPrefix); len(keys) != 0 {
			t.Errorf("Expected no history, got %v", keys)
		}
	})

	t.Run("unavailable history skips the cycle", func(t *testing.T) {
		f := newFixture(t, false)
		f.set("q", row("1", "a"))
		if _, err := f.cycle.Run(ctx, Query{Name: "q"}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		f.set("q", row("2", "b"))
		f.backend.fail.Store(true)
		_, err := f.cycle.Run(ctx, Query{Name: "q"})
		if !history.IsUnavailable(err) || !IsCycleError(err) {
			t.Fatalf("Expected unavailable CycleError, got %v", err)
		}
		if got := f.sink.count("q"); got != 1 {
			t.Errorf("Expected no delivery while unavailable, got %d lines", got)
		}

		f.backend.fail.Store(false)
		item, err := f.cycle.Run(ctx, Query{Name: "q"})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		diff, _ := item.Diff()
		if len(diff.Added) != 1 || len(diff.Removed) != 1 {
			t.Errorf("Expected diff against last stored table, got %v", diff)
		}
	})

	t.Run("corrupt history aborts as malformed", func(t *testing.T) {
		f := newFixture(t, false)
		f.set("q", row("1", "a"))
		f.backend.Put(history.StorageKey("q"), []byte(`{"name":`))

		_, err := f.cycle.Run(ctx, Query{Name: "q"})
		if !tree.IsMalformed(err) {
			t.Fatalf("Expected malformed error, got %v", err)
		}
		if f.sink.count("q") != 0 {
			t.Error("Expected nothing delivered")
		}
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeDifferential, false},
		{"differential", ModeDifferential, false},
		{"snapshot", ModeSnapshot, false},
		{"event", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	f := newFixture(t, false)

	if _, err := New(f.cycle, []Query{{Name: "", Interval: time.Second}}, nil); err == nil {
		t.Error("Expected error for empty name")
	}
	if _, err := New(f.cycle, []Query{{Name: "a", Interval: 0}}, nil); err == nil {
		t.Error("Expected error for zero interval")
	}
	dup := []Query{{Name: "a", Interval: time.Second}, {Name: "a", Interval: time.Second}}
	if _, err := New(f.cycle, dup, nil); err == nil {
		t.Error("Expected error for duplicate name")
	}

	s, err := New(f.cycle, []Query{{Name: "b", Interval: time.Second}, {Name: "a", Interval: time.Second}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	names := s.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Expected sorted names, got %v", names)
	}
	if err := s.RunOnce(context.Background(), "nope"); err == nil {
		t.Error("Expected error for unknown query")
	}
}

func TestSchedulerOrderedDelivery(t *testing.T) {
	sink := newRecordingSink()
	var calls atomic.Int64
	src := source.Func(func(_ context.Context, name, _ string) (results.Table, error) {
		n := calls.Add(1)
		return results.NewTable(row(time.Unix(n, 0).Format("150405"), name)), nil
	})

	cycle, err := NewCycle(&CycleConfig{
		Source:  src,
		History: history.New(history.NewMemoryBackend()),
		Sink:    sink,
		Clock:   &tickingClock{},
	})
	if err != nil {
		t.Fatalf("NewCycle failed: %v", err)
	}

	queries := []Query{
		{Name: "alpha", Interval: 5 * time.Millisecond},
		{Name: "beta", Interval: 5 * time.Millisecond},
	}
	s, err := New(cycle, queries, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RunOnce(ctx, "alpha")
		}()
	}
	wg.Wait()

	deadline := time.Now().Add(5 * time.Second)
	for sink.count("alpha") < 8 || sink.count("beta") < 3 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for cycles")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	for _, name := range []string{"alpha", "beta"} {
		sink.mu.Lock()
		lines := sink.lines[name]
		sink.mu.Unlock()

		var last int64
		for i, line := range lines {
			item, err := codec.DecodeLogItem(line)
			if err != nil {
				t.Fatalf("DecodeLogItem failed: %v", err)
			}
			if item.Name() != name {
				t.Errorf("Expected name %s, got %s", name, item.Name())
			}
			if i > 0 && item.UnixTime() <= last {
				t.Errorf("%s: item %d delivered out of order (%d after %d)", name, i, item.UnixTime(), last)
			}
			last = item.UnixTime()
		}
	}
}
