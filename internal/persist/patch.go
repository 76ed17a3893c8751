package persist

import (
	"errors"

	"github.com/kasuganosora/memdb/internal/value"
)

// Patch is a partial update: Entity.ApplyPatch touches only the fields
// present here, marking each one dirty when its value actually changes.
type Patch struct {
	Fields map[string]value.Value
}

// NewPatch starts an empty Patch.
func NewPatch() *Patch {
	return &Patch{Fields: map[string]value.Value{}}
}

// Set assigns one field and returns the Patch for chaining.
func (p *Patch) Set(name string, v value.Value) *Patch {
	p.Fields[name] = v
	return p
}

// Validate rejects an empty patch — applying nothing is never a valid
// mutation, per spec.md 4.10.
func (p *Patch) Validate() error {
	if len(p.Fields) == 0 {
		return errors.New("persist: patch carries no fields")
	}
	return nil
}
