package tree

import "strconv"

// Path helpers used by decoders to report where a document went wrong.

func Key(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func Index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func kind(n Node) string {
	switch n.(type) {
	case String:
		return "string"
	case List:
		return "list"
	case *Map:
		return "map"
	default:
		return "nothing"
	}
}

// AsString returns n as a leaf or a MalformedError naming path.
func AsString(n Node, path string) (string, error) {
	s, ok := n.(String)
	if !ok {
		return "", Malformed(path, "expected string, found %s", kind(n))
	}
	return string(s), nil
}

// AsList returns n as a list or a MalformedError naming path.
func AsList(n Node, path string) (List, error) {
	l, ok := n.(List)
	if !ok {
		return nil, Malformed(path, "expected list, found %s", kind(n))
	}
	return l, nil
}

// AsMap returns n as a map or a MalformedError naming path.
func AsMap(n Node, path string) (*Map, error) {
	m, ok := n.(*Map)
	if !ok || m == nil {
		return nil, Malformed(path, "expected map, found %s", kind(n))
	}
	return m, nil
}

// Require returns the node bound to key or a MalformedError.
func (m *Map) Require(path, key string) (Node, error) {
	v, ok := m.Get(key)
	if !ok {
		return nil, Malformed(path, "missing key %q", key)
	}
	return v, nil
}

// RequireString returns the leaf bound to key.
func (m *Map) RequireString(path, key string) (string, error) {
	v, err := m.Require(path, key)
	if err != nil {
		return "", err
	}
	return AsString(v, Key(path, key))
}

// RequireList returns the list bound to key.
func (m *Map) RequireList(path, key string) (List, error) {
	v, err := m.Require(path, key)
	if err != nil {
		return nil, err
	}
	return AsList(v, Key(path, key))
}

// OnlyKeys fails when m holds a key outside allowed.
func (m *Map) OnlyKeys(path string, allowed ...string) error {
	for _, k := range m.keys {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return Malformed(path, "unexpected key %q", k)
		}
	}
	return nil
}
