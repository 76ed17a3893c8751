package persist

import "github.com/kasuganosora/memdb/internal/value"

// Command is one named, auditable state transition — the enumerated
// variant set spec.md 4.10 describes as "SetField per field plus Touch".
// Apply receives a snapshot of the entity's current fields and reports
// which fields changed plus whether anything actually did; Command names
// are stable so they can be logged for auditing.
type Command interface {
	Name() string
	Apply(state map[string]value.Value) (changed map[string]value.Value, ok bool, err error)
}

// TouchCommand is the variant every persisted type exposes: it changes no
// field but still counts as an access when recorded by a caller (the
// entity runtime's apply_deterministic_command path, for one).
type TouchCommand struct{}

func (TouchCommand) Name() string { return "Touch" }

func (TouchCommand) Apply(map[string]value.Value) (map[string]value.Value, bool, error) {
	return nil, false, nil
}

// SetFieldCommand assigns one named field through the Command interface
// rather than Entity.SetField directly, so the mutation carries a stable
// name into whatever audit trail records Command applications.
type SetFieldCommand struct {
	Field string
	Value value.Value
}

func (c SetFieldCommand) Name() string { return "SetField:" + c.Field }

func (c SetFieldCommand) Apply(state map[string]value.Value) (map[string]value.Value, bool, error) {
	if existing, ok := state[c.Field]; ok {
		if eq, err := existing.Compare(c.Value); err == nil && eq == 0 {
			return nil, false, nil
		}
	}
	return map[string]value.Value{c.Field: c.Value}, true, nil
}
