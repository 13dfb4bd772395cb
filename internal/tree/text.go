package tree

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"unicode/utf8"
)

// Marshal renders n as compact JSON. Map members keep their order and HTML
// characters are left unescaped.
func Marshal(n Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, n, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalString is Marshal returning a string.
func MarshalString(n Node) (string, error) {
	b, err := Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encode(buf *bytes.Buffer, n Node, path string) error {
	switch v := n.(type) {
	case String:
		return encodeString(buf, string(v), path)
	case List:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem, Index(path, i)); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case *Map:
		if v == nil {
			return Malformed(path, "nil map")
		}
		buf.WriteByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k, path); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, v.values[k], Key(path, k)); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return Malformed(path, "unsupported node %T", n)
	}
}

func encodeString(buf *bytes.Buffer, s, path string) error {
	// encoding/json would silently swap bad bytes for U+FFFD
	if !utf8.ValidString(s) {
		return Malformed(path, "string is not valid UTF-8")
	}

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return &MalformedError{Path: path, Reason: "failed to encode string", Err: err}
	}

	// json.Encoder adds a trailing newline
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// Unmarshal parses text produced by Marshal, or any JSON that only uses
// strings, arrays and objects. Anything else fails with *MalformedError.
func Unmarshal(data []byte) (Node, error) {
	if !utf8.Valid(data) {
		return nil, Malformed("", "text is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeNode(dec, "")
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, Malformed("", "trailing data after document")
	}

	return n, nil
}

// UnmarshalString is Unmarshal for a string.
func UnmarshalString(s string) (Node, error) {
	return Unmarshal([]byte(s))
}

func decodeNode(dec *json.Decoder, path string) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, Malformed(path, "unexpected end of document")
		}
		return nil, &MalformedError{Path: path, Reason: "invalid text", Err: err}
	}

	switch t := tok.(type) {
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			return decodeList(dec, path)
		case '{':
			return decodeMap(dec, path)
		}
		return nil, Malformed(path, "unexpected %q", t.String())
	case json.Number:
		return nil, Malformed(path, "numbers are not allowed, found %s", t.String())
	case bool:
		return nil, Malformed(path, "booleans are not allowed")
	case nil:
		return nil, Malformed(path, "null is not allowed")
	default:
		return nil, Malformed(path, "unexpected token %v", tok)
	}
}

func decodeList(dec *json.Decoder, path string) (Node, error) {
	list := List{}
	for dec.More() {
		elem, err := decodeNode(dec, Index(path, len(list)))
		if err != nil {
			return nil, err
		}
		list = append(list, elem)
	}
	if err := closing(dec, path, ']'); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeMap(dec *json.Decoder, path string) (Node, error) {
	m := NewMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &MalformedError{Path: path, Reason: "invalid text", Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, Malformed(path, "expected object key, found %v", tok)
		}
		if m.Has(key) {
			return nil, Malformed(path, "duplicate key %q", key)
		}
		value, err := decodeNode(dec, Key(path, key))
		if err != nil {
			return nil, err
		}
		m.Set(key, value)
	}
	if err := closing(dec, path, '}'); err != nil {
		return nil, err
	}
	return m, nil
}

func closing(dec *json.Decoder, path string, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return &MalformedError{Path: path, Reason: "invalid text", Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return Malformed(path, "expected %q, found %v", want.String(), tok)
	}
	return nil
}
