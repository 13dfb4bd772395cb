package logitem

import (
	"errors"
	"fmt"
	"time"

	"github.com/witnz/rowdiff/internal/results"
)

// CalendarLayout is the layout of the calendarTime field, always in UTC.
const CalendarLayout = "Mon Jan _2 15:04:05 2006 UTC"

type Kind string

const (
	KindDiff     Kind = "diff"
	KindSnapshot Kind = "snapshot"
)

// Payload is either a Diff or a full Table. The zero value is neither and
// is rejected by Build.
type Payload struct {
	kind     Kind
	diff     results.Diff
	snapshot results.Table
}

func DiffPayload(d results.Diff) Payload {
	return Payload{
		kind: KindDiff,
		diff: results.Diff{
			Added:   results.NewTable(d.Added...),
			Removed: results.NewTable(d.Removed...),
		},
	}
}

func SnapshotPayload(t results.Table) Payload {
	return Payload{kind: KindSnapshot, snapshot: results.NewTable(t...)}
}

func (p Payload) Kind() Kind {
	return p.kind
}

var ErrNoPayload = errors.New("log item requires a diff or snapshot payload")

// LogItem is the record handed to the logging sink once per cycle. All
// fields are fixed at Build time.
type LogItem struct {
	name           string
	hostIdentifier string
	unixTime       int64
	calendarTime   string
	payload        Payload
}

// Build assembles a LogItem. It performs no I/O and reads no clock: both
// timestamps come from now.
func Build(name, hostIdentifier string, payload Payload, now time.Time) (*LogItem, error) {
	if name == "" {
		return nil, fmt.Errorf("log item requires a query name")
	}
	if payload.kind != KindDiff && payload.kind != KindSnapshot {
		return nil, ErrNoPayload
	}

	return &LogItem{
		name:           name,
		hostIdentifier: hostIdentifier,
		unixTime:       now.Unix(),
		calendarTime:   now.UTC().Format(CalendarLayout),
		payload:        payload,
	}, nil
}

// Restore rebuilds a LogItem from decoded fields, keeping the calendar time
// exactly as it was logged.
func Restore(name, hostIdentifier string, unixTime int64, calendarTime string, payload Payload) (*LogItem, error) {
	if payload.kind != KindDiff && payload.kind != KindSnapshot {
		return nil, ErrNoPayload
	}
	return &LogItem{
		name:           name,
		hostIdentifier: hostIdentifier,
		unixTime:       unixTime,
		calendarTime:   calendarTime,
		payload:        payload,
	}, nil
}

func (l *LogItem) Name() string           { return l.name }
func (l *LogItem) HostIdentifier() string { return l.hostIdentifier }
func (l *LogItem) UnixTime() int64        { return l.unixTime }
func (l *LogItem) CalendarTime() string   { return l.calendarTime }
func (l *LogItem) Kind() Kind             { return l.payload.kind }

// Diff returns a copy of the diff payload. ok is false for snapshot items.
func (l *LogItem) Diff() (d results.Diff, ok bool) {
	if l.payload.kind != KindDiff {
		return results.Diff{}, false
	}
	return results.Diff{
		Added:   results.NewTable(l.payload.diff.Added...),
		Removed: results.NewTable(l.payload.diff.Removed...),
	}, true
}

// Snapshot returns a copy of the snapshot payload. ok is false for diff items.
func (l *LogItem) Snapshot() (t results.Table, ok bool) {
	if l.payload.kind != KindSnapshot {
		return nil, false
	}
	return results.NewTable(l.payload.snapshot...), true
}

// Equal compares metadata and payload. Payload tables are compared in
// sequence order since a logged record is replayed as written.
func (l *LogItem) Equal(other *LogItem) bool {
	if l == nil || other == nil {
		return l == other
	}
	if l.name != other.name ||
		l.hostIdentifier != other.hostIdentifier ||
		l.unixTime != other.unixTime ||
		l.calendarTime != other.calendarTime ||
		l.payload.kind != other.payload.kind {
		return false
	}
	if l.payload.kind == KindDiff {
		return l.payload.diff.Added.SequenceEqual(other.payload.diff.Added) &&
			l.payload.diff.Removed.SequenceEqual(other.payload.diff.Removed)
	}
	return l.payload.snapshot.SequenceEqual(other.payload.snapshot)
}
