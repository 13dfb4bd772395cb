package results

// Diff holds the rows added and removed between two tables.
type Diff struct {
	Added   Table
	Removed Table
}

// Empty reports whether the diff carries no change.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Equal compares both sides as multisets.
func (d Diff) Equal(other Diff) bool {
	return d.Added.Equal(other.Added) && d.Removed.Equal(other.Removed)
}

// ComputeDiff returns the multiset difference between two tables. A row
// seen n times more in next than in prev is added n times, and the reverse
// for removed. Position never matters.
//
// Added rows follow their first appearance in next, removed rows their
// first appearance in prev.
func ComputeDiff(prev, next Table) Diff {
	oldCounts := prev.Counts()
	newCounts := next.Counts()

	d := Diff{Added: Table{}, Removed: Table{}}

	emitted := make(map[string]struct{}, len(newCounts))
	for _, row := range next {
		k := row.Key()
		if _, done := emitted[k]; done {
			continue
		}
		emitted[k] = struct{}{}
		for n := newCounts[k] - oldCounts[k]; n > 0; n-- {
			d.Added = append(d.Added, row)
		}
	}

	emitted = make(map[string]struct{}, len(oldCounts))
	for _, row := range prev {
		k := row.Key()
		if _, done := emitted[k]; done {
			continue
		}
		emitted[k] = struct{}{}
		for n := oldCounts[k] - newCounts[k]; n > 0; n-- {
			d.Removed = append(d.Removed, row)
		}
	}

	return d
}
