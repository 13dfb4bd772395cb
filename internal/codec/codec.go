package codec

import (
	"strconv"

	"github.com/witnz/rowdiff/internal/hash"
	"github.com/witnz/rowdiff/internal/logitem"
	"github.com/witnz/rowdiff/internal/results"
	"github.com/witnz/rowdiff/internal/tree"
)

const (
	FieldAdded          = "added"
	FieldRemoved        = "removed"
	FieldName           = "name"
	FieldEpoch          = "epoch"
	FieldUnixTime       = "unixTime"
	FieldDigest         = "digest"
	FieldResults        = "results"
	FieldHostIdentifier = "hostIdentifier"
	FieldCalendarTime   = "calendarTime"
	FieldDiffResults    = "diffResults"
	FieldSnapshot       = "snapshot"
)

// RowToTree encodes a row in its own column order.
func RowToTree(row results.Row) tree.Node {
	return rowToTree(row, row.Columns())
}

// rowToTree writes the row's columns following order; columns the row
// lacks are skipped, so absence survives encoding.
func rowToTree(row results.Row, order []string) *tree.Map {
	m := tree.NewMap()
	for _, col := range order {
		if v, ok := row.Get(col); ok {
			m.Set(col, tree.String(v))
		}
	}
	return m
}

func RowFromTree(n tree.Node) (results.Row, error) {
	return rowFromTree(n, "")
}

func rowFromTree(n tree.Node, path string) (results.Row, error) {
	m, err := tree.AsMap(n, path)
	if err != nil {
		return results.Row{}, err
	}

	cols := make([]results.Column, 0, m.Len())
	for _, e := range m.Entries() {
		v, err := tree.AsString(e.Value, tree.Key(path, e.Key))
		if err != nil {
			return results.Row{}, err
		}
		cols = append(cols, results.Column{Name: e.Key, Value: v})
	}

	row, err := results.NewRowFromColumns(cols...)
	if err != nil {
		return results.Row{}, &tree.MalformedError{Path: path, Reason: "row rejected", Err: err}
	}
	return row, nil
}

// TableToTree encodes rows in sequence, every row using the column order
// first observed across the table.
func TableToTree(t results.Table) tree.Node {
	order := t.Columns()
	list := make(tree.List, len(t))
	for i, row := range t {
		list[i] = rowToTree(row, order)
	}
	return list
}

func TableFromTree(n tree.Node) (results.Table, error) {
	return tableFromTree(n, "")
}

func tableFromTree(n tree.Node, path string) (results.Table, error) {
	list, err := tree.AsList(n, path)
	if err != nil {
		return nil, err
	}
	t := make(results.Table, len(list))
	for i, elem := range list {
		row, err := rowFromTree(elem, tree.Index(path, i))
		if err != nil {
			return nil, err
		}
		t[i] = row
	}
	return t, nil
}

func DiffToTree(d results.Diff) tree.Node {
	return tree.NewMap(
		tree.E(FieldAdded, TableToTree(d.Added)),
		tree.E(FieldRemoved, TableToTree(d.Removed)),
	)
}

func DiffFromTree(n tree.Node) (results.Diff, error) {
	return diffFromTree(n, "")
}

func diffFromTree(n tree.Node, path string) (results.Diff, error) {
	m, err := tree.AsMap(n, path)
	if err != nil {
		return results.Diff{}, err
	}
	if err := m.OnlyKeys(path, FieldAdded, FieldRemoved); err != nil {
		return results.Diff{}, err
	}

	addedNode, err := m.Require(path, FieldAdded)
	if err != nil {
		return results.Diff{}, err
	}
	removedNode, err := m.Require(path, FieldRemoved)
	if err != nil {
		return results.Diff{}, err
	}

	added, err := tableFromTree(addedNode, tree.Key(path, FieldAdded))
	if err != nil {
		return results.Diff{}, err
	}
	removed, err := tableFromTree(removedNode, tree.Key(path, FieldRemoved))
	if err != nil {
		return results.Diff{}, err
	}

	return results.Diff{Added: added, Removed: removed}, nil
}

// SnapshotToTree stores the table with its digest so a reader can tell a
// damaged record from a genuine one.
func SnapshotToTree(s results.Snapshot) tree.Node {
	return tree.NewMap(
		tree.E(FieldName, tree.String(s.Name)),
		tree.E(FieldEpoch, tree.String(strconv.FormatUint(s.Epoch, 10))),
		tree.E(FieldUnixTime, tree.String(strconv.FormatInt(s.UnixTime, 10))),
		tree.E(FieldDigest, tree.String(hash.TableDigest(s.Results))),
		tree.E(FieldResults, TableToTree(s.Results)),
	)
}

func SnapshotFromTree(n tree.Node) (results.Snapshot, error) {
	m, err := tree.AsMap(n, "")
	if err != nil {
		return results.Snapshot{}, err
	}
	if err := m.OnlyKeys("", FieldName, FieldEpoch, FieldUnixTime, FieldDigest, FieldResults); err != nil {
		return results.Snapshot{}, err
	}

	name, err := m.RequireString("", FieldName)
	if err != nil {
		return results.Snapshot{}, err
	}
	epoch, err := requireUint(m, FieldEpoch)
	if err != nil {
		return results.Snapshot{}, err
	}
	unixTime, err := requireInt(m, FieldUnixTime)
	if err != nil {
		return results.Snapshot{}, err
	}
	digest, err := m.RequireString("", FieldDigest)
	if err != nil {
		return results.Snapshot{}, err
	}
	resultsNode, err := m.Require("", FieldResults)
	if err != nil {
		return results.Snapshot{}, err
	}
	table, err := tableFromTree(resultsNode, FieldResults)
	if err != nil {
		return results.Snapshot{}, err
	}

	if actual := hash.TableDigest(table); actual != digest {
		return results.Snapshot{}, tree.Malformed(FieldDigest,
			"digest mismatch: stored %q, computed %q", digest, actual)
	}

	return results.Snapshot{
		Name:     name,
		Epoch:    epoch,
		UnixTime: unixTime,
		Results:  table,
	}, nil
}

func LogItemToTree(item *logitem.LogItem) tree.Node {
	m := tree.NewMap(
		tree.E(FieldName, tree.String(item.Name())),
		tree.E(FieldHostIdentifier, tree.String(item.HostIdentifier())),
		tree.E(FieldCalendarTime, tree.String(item.CalendarTime())),
		tree.E(FieldUnixTime, tree.String(strconv.FormatInt(item.UnixTime(), 10))),
	)
	if d, ok := item.Diff(); ok {
		m.Set(FieldDiffResults, DiffToTree(d))
	} else if t, ok := item.Snapshot(); ok {
		m.Set(FieldSnapshot, TableToTree(t))
	}
	return m
}

func LogItemFromTree(n tree.Node) (*logitem.LogItem, error) {
	m, err := tree.AsMap(n, "")
	if err != nil {
		return nil, err
	}
	if err := m.OnlyKeys("", FieldName, FieldHostIdentifier, FieldCalendarTime,
		FieldUnixTime, FieldDiffResults, FieldSnapshot); err != nil {
		return nil, err
	}

	name, err := m.RequireString("", FieldName)
	if err != nil {
		return nil, err
	}
	host, err := m.RequireString("", FieldHostIdentifier)
	if err != nil {
		return nil, err
	}
	calendar, err := m.RequireString("", FieldCalendarTime)
	if err != nil {
		return nil, err
	}
	unixTime, err := requireInt(m, FieldUnixTime)
	if err != nil {
		return nil, err
	}

	diffNode, hasDiff := m.Get(FieldDiffResults)
	snapNode, hasSnap := m.Get(FieldSnapshot)

	var payload logitem.Payload
	switch {
	case hasDiff && hasSnap:
		return nil, tree.Malformed("", "both %q and %q present", FieldDiffResults, FieldSnapshot)
	case hasDiff:
		d, err := diffFromTree(diffNode, FieldDiffResults)
		if err != nil {
			return nil, err
		}
		payload = logitem.DiffPayload(d)
	case hasSnap:
		t, err := tableFromTree(snapNode, FieldSnapshot)
		if err != nil {
			return nil, err
		}
		payload = logitem.SnapshotPayload(t)
	default:
		return nil, tree.Malformed("", "missing payload: expected %q or %q", FieldDiffResults, FieldSnapshot)
	}

	item, err := logitem.Restore(name, host, unixTime, calendar, payload)
	if err != nil {
		return nil, &tree.MalformedError{Reason: "log item rejected", Err: err}
	}
	return item, nil
}

func requireUint(m *tree.Map, key string) (uint64, error) {
	s, err := m.RequireString("", key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, &tree.MalformedError{Path: key, Reason: "expected unsigned integer", Err: err}
	}
	return v, nil
}

func requireInt(m *tree.Map, key string) (int64, error) {
	s, err := m.RequireString("", key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &tree.MalformedError{Path: key, Reason: "expected integer", Err: err}
	}
	return v, nil
}
