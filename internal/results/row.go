package results

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Column is a single column/value pair of a Row.
type Column struct {
	Name  string
	Value string
}

// Row is one tuple of a query result. Column order is remembered for
// encoding but carries no meaning for equality.
type Row struct {
	names  []string
	values map[string]string
}

// NewRow builds a Row from a map. Columns are ordered by name since a Go
// map has no order of its own.
func NewRow(m map[string]string) (Row, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Value: m[name]}
	}
	return NewRowFromColumns(cols...)
}

// NewRowFromColumns builds a Row keeping the given column order.
func NewRowFromColumns(cols ...Column) (Row, error) {
	row := Row{
		names:  make([]string, 0, len(cols)),
		values: make(map[string]string, len(cols)),
	}
	for _, c := range cols {
		if c.Name == "" {
			return Row{}, NewInvalidRowError("", "empty column name")
		}
		if !utf8.ValidString(c.Name) {
			return Row{}, NewInvalidRowError(c.Name, "column name is not valid UTF-8")
		}
		if !utf8.ValidString(c.Value) {
			return Row{}, NewInvalidRowError(c.Name, "value is not valid UTF-8")
		}
		if _, dup := row.values[c.Name]; dup {
			return Row{}, NewInvalidRowError(c.Name, "duplicate column")
		}
		row.names = append(row.names, c.Name)
		row.values[c.Name] = c.Value
	}
	return row, nil
}

// MustRow is NewRow for literals known to be valid. It panics otherwise.
func MustRow(m map[string]string) Row {
	row, err := NewRow(m)
	if err != nil {
		panic(err)
	}
	return row
}

// Get returns the value of a column and whether the row holds it.
func (r Row) Get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Columns returns the column names in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.names)
}

// Map returns a copy of the row as a plain map.
func (r Row) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// Equal reports whether both rows hold the same columns with the same values.
func (r Row) Equal(other Row) bool {
	if len(r.values) != len(other.values) {
		return false
	}
	for k, v := range r.values {
		ov, ok := other.values[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Key returns a canonical identity for the row: equal rows produce equal
// keys and distinct rows produce distinct keys. Pairs are sorted by column
// name and every field is length-prefixed, so no value can forge a
// separator.
func (r Row) Key() string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		writeField(&b, name)
		writeField(&b, r.values[name])
	}
	return b.String()
}

func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func (r Row) String() string {
	parts := make([]string, len(r.names))
	for i, name := range r.names {
		parts[i] = fmt.Sprintf("%s:%q", name, r.values[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
