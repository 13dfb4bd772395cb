// Package tree holds the document model every persisted or logged value
// passes through on its way to text.
//
// A Node is one of three shapes:
//
//	String  a text leaf
//	List    an ordered sequence of nodes
//	*Map    an ordered set of unique keys, each bound to a node
//
// The text form is compact JSON restricted to those shapes. Object members
// are written in map order and read back in document order, so a document
// survives Marshal followed by Unmarshal unchanged. Numbers, booleans and
// null are not part of the model and are rejected on input.
package tree
