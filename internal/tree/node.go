package tree

// Node is a sealed interface. Only String, List and *Map implement it.
type Node interface {
	node()
}

// String is a text leaf.
type String string

func (String) node() {}

// List is an ordered sequence of nodes.
type List []Node

func (List) node() {}

// Map is an ordered mapping from unique keys to nodes.
type Map struct {
	keys   []string
	values map[string]Node
}

func (*Map) node() {}

// Entry is a key/value pair used to build a Map in one call.
type Entry struct {
	Key   string
	Value Node
}

// E is shorthand for Entry.
func E(key string, value Node) Entry {
	return Entry{Key: key, Value: value}
}

// NewMap builds a Map from entries in order. A repeated key keeps its first
// position and takes the last value.
func NewMap(entries ...Entry) *Map {
	m := &Map{
		keys:   make([]string, 0, len(entries)),
		values: make(map[string]Node, len(entries)),
	}
	for _, e := range entries {
		m.Set(e.Key, e.Value)
	}
	return m
}

// Set binds key to value. New keys are appended; existing keys keep their
// position.
func (m *Map) Set(key string, value Node) {
	if m.values == nil {
		m.values = make(map[string]Node)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the node bound to key.
func (m *Map) Get(key string) (Node, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is bound.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the keys in order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Entries returns the entries in order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, len(m.keys))
	for i, k := range m.keys {
		out[i] = Entry{Key: k, Value: m.values[k]}
	}
	return out
}

// Equal reports structural equality. Map entries must appear in the same
// order on both sides.
func Equal(a, b Node) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok {
			return false
		}
		if av == nil || bv == nil {
			return av == nil && bv == nil
		}
		if av.Len() != bv.Len() {
			return false
		}
		for i, k := range av.keys {
			if bv.keys[i] != k {
				return false
			}
			if !Equal(av.values[k], bv.values[k]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}
