// Package runtime implements the entity runtime: a standalone,
// event-sourced object store that coexists with the SQL engine rather than
// sitting on top of it. Entities are JSON state blobs persisted through an
// append-only journal plus periodic snapshot, kept hot (in memory, touched
// recently) or cold (evicted from the working set but still recoverable)
// under LRU-style passivation.
package runtime

import (
	"encoding/json"
	"time"
)

// Key addresses one entity: its declared type name plus its persist_id.
type Key struct {
	EntityType string
	PersistID  string
}

// State is a decoded JSON object: the runtime treats entity state as an
// opaque field bag, leaving its shape to the handlers registered against
// each entity type.
type State map[string]any

// Clone returns a deep copy of s via a JSON round-trip, the isolation
// mechanism apply_deterministic_command relies on to mutate a working copy
// without touching the resident entity until a retry attempt succeeds.
func (s State) Clone() (State, error) {
	if s == nil {
		return State{}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StoredEntity is one entity's full runtime record: its current state plus
// the bookkeeping passivation and GC act on.
type StoredEntity struct {
	Key           Key
	TableName     string
	SchemaVersion int64
	State         State
	LastAccessAt  time.Time
	AccessCount   int64
	Resident      bool // true while hot; false once passivated to cold
}

func (e *StoredEntity) touch(now time.Time) {
	e.LastAccessAt = now
	e.AccessCount++
}

// PayloadField describes one field a deterministic command's payload must
// (or may) carry.
type PayloadField struct {
	Name        string
	PayloadType string // "string", "int", "float", "bool", "object", "array", "any"
	Required    bool
}

// PayloadSchema validates a deterministic command's payload before its
// handler runs.
type PayloadSchema struct {
	RootType        string
	Fields          []PayloadField
	AllowExtraFields bool
}

// DeterministicHandler applies a named command to state, returning the new
// state. It must be a pure function of (state, payload): the runtime may
// invoke it more than once across retry attempts.
type DeterministicHandler func(state State, payload map[string]any) (State, error)

// RuntimeClosure runs an arbitrary, non-deterministic operation against an
// entity's state. Unlike a DeterministicHandler it is never retried and the
// call itself is never recorded to the journal — only the resulting state.
type RuntimeClosure func(state State, args map[string]any) (State, error)

// MaintenanceReport summarizes one Maintain pass.
type MaintenanceReport struct {
	Passivated              int
	ResurrectedSinceLastReport int64
	GCDeleted               int
}
