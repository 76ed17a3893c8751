package persist

import "github.com/kasuganosora/memdb/internal/value"

// Draft is the constructor form spec.md 4.10 names: the full field set a
// new persisted instance is built from. PersistSession.NewEntity validates
// it against the type's DynamicSchema before the first Save.
type Draft struct {
	Fields map[string]value.Value
}

// NewDraft starts an empty Draft.
func NewDraft() *Draft {
	return &Draft{Fields: map[string]value.Value{}}
}

// Set assigns one field and returns the Draft for chaining.
func (d *Draft) Set(name string, v value.Value) *Draft {
	d.Fields[name] = v
	return d
}
