// Package source runs queries and hands their rows to the diff engine.
package source

import (
	"context"
	"fmt"

	"github.com/witnz/rowdiff/internal/results"
)

// Source executes the SQL registered for a query name.
type Source interface {
	Run(ctx context.Context, name, sql string) (results.Table, error)
}

// Func adapts a plain function to Source.
type Func func(ctx context.Context, name, sql string) (results.Table, error)

func (f Func) Run(ctx context.Context, name, sql string) (results.Table, error) {
	return f(ctx, name, sql)
}

// Static always returns the same tables, keyed by query name.
type Static map[string]results.Table

func (s Static) Run(_ context.Context, name, _ string) (results.Table, error) {
	t, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("no results registered for query %s", name)
	}
	return results.NewTable(t...), nil
}

// buildRow pairs column names with text values. A nil value is SQL NULL
// and becomes the empty string.
func buildRow(names []string, values [][]byte) (results.Row, error) {
	if len(names) != len(values) {
		return results.Row{}, fmt.Errorf("column count mismatch: %d names, %d values", len(names), len(values))
	}
	cols := make([]results.Column, len(names))
	for i, name := range names {
		cols[i] = results.Column{Name: name, Value: string(values[i])}
	}
	return results.NewRowFromColumns(cols...)
}
