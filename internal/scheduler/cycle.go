// Package scheduler runs query cycles: execute, diff against history,
// persist, then emit a log item.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/witnz/rowdiff/internal/codec"
	"github.com/witnz/rowdiff/internal/history"
	"github.com/witnz/rowdiff/internal/logitem"
	"github.com/witnz/rowdiff/internal/results"
	"github.com/witnz/rowdiff/internal/sink"
	"github.com/witnz/rowdiff/internal/source"
)

type Mode string

const (
	ModeDifferential Mode = "differential"
	ModeSnapshot     Mode = "snapshot"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeDifferential:
		return ModeDifferential, nil
	case ModeSnapshot:
		return ModeSnapshot, nil
	default:
		return "", fmt.Errorf("unknown query mode: %s", s)
	}
}

type Query struct {
	Name     string
	SQL      string
	Interval time.Duration
	Mode     Mode
}

type CycleConfig struct {
	Source         source.Source
	History        *history.Store
	Sink           sink.Sink
	Clock          logitem.Clock
	HostIdentifier string
	LogEmptyDiffs  bool
	Logger         *slog.Logger
}

// Cycle performs one pass for a query. It holds no per-name state; the
// caller serializes cycles for the same name.
type Cycle struct {
	source         source.Source
	history        *history.Store
	sink           sink.Sink
	clock          logitem.Clock
	hostIdentifier string
	logEmptyDiffs  bool
	logger         *slog.Logger
}

func NewCycle(cfg *CycleConfig) (*Cycle, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	c := &Cycle{
		source:         cfg.Source,
		history:        cfg.History,
		sink:           cfg.Sink,
		clock:          cfg.Clock,
		hostIdentifier: cfg.HostIdentifier,
		logEmptyDiffs:  cfg.LogEmptyDiffs,
		logger:         cfg.Logger,
	}
	if c.clock == nil {
		c.clock = logitem.SystemClock{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Run executes q once. It returns the delivered item, or nil when a
// differential cycle found no change and empty diffs are not logged.
//
// History is written before the item is delivered. Any failure before the
// write leaves history untouched, so the next cycle diffs against the same
// baseline.
func (c *Cycle) Run(ctx context.Context, q Query) (*logitem.LogItem, error) {
	table, err := c.source.Run(ctx, q.Name, q.SQL)
	if err != nil {
		return nil, NewCycleError(q.Name, "run query", err)
	}

	prev, found, err := c.history.Get(q.Name)
	if err != nil {
		return nil, NewCycleError(q.Name, "read history", err)
	}

	now := c.clock.Now()

	var payload logitem.Payload
	var diff results.Diff
	switch q.Mode {
	case ModeSnapshot:
		payload = logitem.SnapshotPayload(table)
	default:
		base := results.Table{}
		if found {
			base = prev.Results
		}
		diff = results.ComputeDiff(base, table)
		payload = logitem.DiffPayload(diff)
	}

	snap, err := c.history.Put(q.Name, table, now)
	if err != nil {
		return nil, NewCycleError(q.Name, "write history", err)
	}

	c.logger.Debug("stored results",
		"query", q.Name,
		"epoch", snap.Epoch,
		"rows", len(snap.Results),
		"added", len(diff.Added),
		"removed", len(diff.Removed))

	if q.Mode != ModeSnapshot && diff.Empty() && !c.logEmptyDiffs {
		return nil, nil
	}

	item, err := logitem.Build(q.Name, c.hostIdentifier, payload, now)
	if err != nil {
		return nil, NewCycleError(q.Name, "build log item", err)
	}

	line, err := codec.EncodeLogItem(item)
	if err != nil {
		return nil, NewCycleError(q.Name, "encode log item", err)
	}

	if err := c.sink.Deliver(ctx, q.Name, line); err != nil {
		return nil, NewCycleError(q.Name, "deliver log item", err)
	}

	return item, nil
}
