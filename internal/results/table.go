package results

// Table is the full result set of one query execution. Sequence order is
// kept for storage; equality treats the table as a multiset.
type Table []Row

// NewTable returns a Table holding rows in the given order.
func NewTable(rows ...Row) Table {
	t := make(Table, len(rows))
	copy(t, rows)
	return t
}

// Columns returns every column name in the order it is first observed,
// walking rows in sequence and each row in its own column order.
func (t Table) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, row := range t {
		for _, name := range row.names {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			cols = append(cols, name)
		}
	}
	return cols
}

// Counts returns the multiplicity of every distinct row, keyed by Row.Key.
func (t Table) Counts() map[string]int {
	counts := make(map[string]int, len(t))
	for _, row := range t {
		counts[row.Key()]++
	}
	return counts
}

// Equal reports multiset equality: the same rows with the same
// multiplicities, regardless of order.
func (t Table) Equal(other Table) bool {
	if len(t) != len(other) {
		return false
	}
	counts := t.Counts()
	for _, row := range other {
		k := row.Key()
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}

// SequenceEqual reports whether both tables hold equal rows in the same order.
func (t Table) SequenceEqual(other Table) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if !t[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Snapshot is the last Table persisted for a query name. Epoch starts at 1
// and grows by one with every update.
type Snapshot struct {
	Name     string
	Epoch    uint64
	UnixTime int64
	Results  Table
}

// Equal compares metadata and the stored table, including its order.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Name == other.Name &&
		s.Epoch == other.Epoch &&
		s.UnixTime == other.UnixTime &&
		s.Results.SequenceEqual(other.Results)
}
