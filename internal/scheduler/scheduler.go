package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/witnz/rowdiff/internal/history"
)

// Scheduler runs every query on its own goroutine and ticker. Cycles for
// one name never overlap, so its log items leave in completion order.
type Scheduler struct {
	cycle   *Cycle
	queries map[string]Query
	locks   map[string]*sync.Mutex
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func New(cycle *Cycle, queries []Query, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cycle:   cycle,
		queries: make(map[string]Query, len(queries)),
		locks:   make(map[string]*sync.Mutex, len(queries)),
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	for _, q := range queries {
		if q.Name == "" {
			return nil, fmt.Errorf("query name is required")
		}
		if _, dup := s.queries[q.Name]; dup {
			return nil, fmt.Errorf("duplicate query name: %s", q.Name)
		}
		if q.Interval <= 0 {
			return nil, fmt.Errorf("interval must be positive for query %s", q.Name)
		}
		if q.Mode == "" {
			q.Mode = ModeDifferential
		}
		s.queries[q.Name] = q
		s.locks[q.Name] = &sync.Mutex{}
	}

	return s, nil
}

// Names returns the scheduled query names in sorted order.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.queries))
	for name := range s.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one loop per query. Each loop runs a cycle immediately
// and then once per interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, name := range s.Names() {
		s.wg.Add(1)
		go s.loop(ctx, s.queries[name])
	}
	s.logger.Info("scheduler started", "queries", len(s.queries))
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, q Query) {
	defer s.wg.Done()

	s.runLogged(ctx, q)

	ticker := time.NewTicker(q.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runLogged(ctx, q)
		}
	}
}

// RunOnce runs a single cycle for name, waiting for any in-flight cycle
// of the same name to finish first.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	q, ok := s.queries[name]
	if !ok {
		return fmt.Errorf("unknown query: %s", name)
	}
	_, err := s.run(ctx, q)
	return err
}

func (s *Scheduler) run(ctx context.Context, q Query) (bool, error) {
	mu := s.locks[q.Name]
	mu.Lock()
	defer mu.Unlock()

	item, err := s.cycle.Run(ctx, q)
	return item != nil, err
}

func (s *Scheduler) runLogged(ctx context.Context, q Query) {
	emitted, err := s.run(ctx, q)
	switch {
	case err == nil && emitted:
		s.logger.Debug("logged results", "query", q.Name, "mode", string(q.Mode))
	case err == nil:
		s.logger.Debug("no changes", "query", q.Name)
	case history.IsUnavailable(err):
		s.logger.Warn("history unavailable, skipping cycle", "query", q.Name, "error", err)
	case ctx.Err() != nil:
	default:
		s.logger.Error("cycle failed", "query", q.Name, "error", err)
	}
}
