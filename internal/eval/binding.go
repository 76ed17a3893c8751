package eval

import "github.com/kasuganosora/memdb/internal/value"

// Binding resolves a column reference to a value for one row of input.
// The executor implements this over its current row (or joined row);
// nothing in this package needs to know about storage or schemas.
type Binding interface {
	Column(name string) (value.Value, bool)
}

// RowBinding is the common Binding: a schema (for name resolution) paired
// with a row of values in schema column order.
type RowBinding struct {
	Schema value.Schema
	Row    value.Row
}

func (b RowBinding) Column(name string) (value.Value, bool) {
	idx, ok := b.Schema.FindColumnIndex(name)
	if !ok || idx >= len(b.Row) {
		return value.Value{}, false
	}
	return b.Row[idx], true
}

// EmptyBinding resolves no columns, used to evaluate expressions that must
// be constant (INSERT VALUES, default-value expressions).
type EmptyBinding struct{}

func (EmptyBinding) Column(string) (value.Value, bool) { return value.Value{}, false }
