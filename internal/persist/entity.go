package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/memdb/internal/dynschema"
	"github.com/kasuganosora/memdb/internal/engine"
	"github.com/kasuganosora/memdb/internal/value"
)

// Entity is one persisted instance of a DynamicSchema type: a reserved
// Metadata envelope plus a business field map, optionally bound to a
// Session for Save/Delete and auto-persist. The zero value is not usable;
// build one through PersistSession.NewEntity or PersistSession.Load.
type Entity struct {
	mu sync.Mutex

	schema dynschema.DynamicSchema
	sess   *engine.Session

	meta      Metadata
	fields    map[string]value.Value
	dirty     map[string]bool
	persisted bool
	autoSave  bool
}

func cloneFields(src map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// newEntity builds a not-yet-persisted Entity from a Draft's fields,
// minting a fresh persist_id and starting at schema_version 1. sess may be
// nil for a detached entity (validate-only use, or one that will only ever
// be saved through SaveBound).
func newEntity(schema dynschema.DynamicSchema, sess *engine.Session, fields map[string]value.Value) (*Entity, error) {
	if err := schema.Validate(fields); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Entity{
		schema: schema,
		sess:   sess,
		meta: Metadata{
			ID:            uuid.NewString(),
			SchemaVersion: 1,
			CreatedAt:     now,
			UpdatedAt:     now,
			LastTouchAt:   now,
		},
		fields: cloneFields(fields),
		dirty:  map[string]bool{},
	}, nil
}

// ID returns the entity's persist_id.
func (e *Entity) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.ID
}

// Version returns the entity's last-saved optimistic-lock version (0
// before the first Save).
func (e *Entity) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta.Version
}

// Persisted reports whether the entity has ever been saved.
func (e *Entity) Persisted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persisted
}

// Meta returns a copy of the entity's reserved metadata.
func (e *Entity) Meta() Metadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.meta
}

// RestoreEntity rebuilds an already-persisted Entity from a previously
// captured Metadata/fields pair, bound to sess — the path a durable
// snapshot file restore (internal/managedvec's PersistVec, on open) uses
// to repopulate its in-memory working set without a database round trip.
func RestoreEntity(schema dynschema.DynamicSchema, sess *engine.Session, meta Metadata, fields map[string]value.Value) *Entity {
	return &Entity{
		schema:    schema,
		sess:      sess,
		meta:      meta,
		fields:    cloneFields(fields),
		dirty:     map[string]bool{},
		persisted: true,
	}
}

// HasPendingChanges reports whether any field has been mutated since the
// last successful Save.
func (e *Entity) HasPendingChanges() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.dirty) > 0
}

// ResetTo overwrites the entity's in-memory state from a previously
// captured Metadata/fields pair, discarding any mutation since — used to
// restore an item's in-memory copy after a failed managed-collection
// mutation (internal/managedvec).
func (e *Entity) ResetTo(meta Metadata, fields map[string]value.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.meta = meta
	e.fields = cloneFields(fields)
	e.dirty = map[string]bool{}
}

// Field reads one business field's current in-memory value.
func (e *Entity) Field(name string) (value.Value, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.fields[name]
	return v, ok
}

// Fields returns a copy of the entity's current business field map.
func (e *Entity) Fields() map[string]value.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneFields(e.fields)
}

func (e *Entity) checkField(cmd string, name string, v value.Value) error {
	f, ok := e.schema.FieldByName(name)
	if !ok {
		if cmd == "" {
			return fmt.Errorf("persist: %q is not a field of %s", name, e.schema.TableName)
		}
		return fmt.Errorf("persist: command %s: %q is not a field of %s", cmd, name, e.schema.TableName)
	}
	if !f.Type.IsCompatible(v) {
		if cmd == "" {
			return fmt.Errorf("persist: field %q: value is not compatible with %s", name, f.Type)
		}
		return fmt.Errorf("persist: command %s: field %q: value is not compatible with %s", cmd, name, f.Type)
	}
	return nil
}

func valuesEqual(a, b value.Value) bool {
	eq, err := a.Compare(b)
	return err == nil && eq == 0
}

// SetField assigns one business field, validating it against the schema,
// and flushes a Save if auto-persist is enabled and the value actually
// changed.
func (e *Entity) SetField(ctx context.Context, name string, v value.Value) error {
	e.mu.Lock()
	if err := e.checkField("", name, v); err != nil {
		e.mu.Unlock()
		return err
	}
	if cur, ok := e.fields[name]; ok && valuesEqual(cur, v) {
		e.mu.Unlock()
		return nil
	}
	e.fields[name] = v
	e.dirty[name] = true
	autoSave := e.autoSave
	e.mu.Unlock()
	if autoSave {
		return e.Save(ctx)
	}
	return nil
}

// ApplyPatch merges patch's fields into the entity, rejecting an empty
// patch, and flushes a Save if auto-persist is enabled and anything
// changed.
func (e *Entity) ApplyPatch(ctx context.Context, patch *Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	changed := false
	for name, v := range patch.Fields {
		if err := e.checkField("", name, v); err != nil {
			e.mu.Unlock()
			return err
		}
		if cur, ok := e.fields[name]; ok && valuesEqual(cur, v) {
			continue
		}
		e.fields[name] = v
		e.dirty[name] = true
		changed = true
	}
	autoSave := e.autoSave
	e.mu.Unlock()
	if changed && autoSave {
		return e.Save(ctx)
	}
	return nil
}

// Apply runs cmd against a snapshot of the entity's current fields,
// merging whatever it reports changed and flushing a Save under
// auto-persist. It returns whether cmd changed anything, mirroring the
// boolean apply(command) spec.md 4.10 names.
func (e *Entity) Apply(ctx context.Context, cmd Command) (bool, error) {
	e.mu.Lock()
	snapshot := cloneFields(e.fields)
	e.mu.Unlock()

	changed, ok, err := cmd.Apply(snapshot)
	if err != nil {
		return false, fmt.Errorf("persist: command %s: %w", cmd.Name(), err)
	}
	if !ok {
		return false, nil
	}

	e.mu.Lock()
	for name, v := range changed {
		if err := e.checkField(cmd.Name(), name, v); err != nil {
			e.mu.Unlock()
			return false, err
		}
		e.fields[name] = v
		e.dirty[name] = true
	}
	autoSave := e.autoSave
	e.mu.Unlock()

	if autoSave {
		if err := e.Save(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

// EnableAutoPersist turns on flush-on-mutation; it requires the entity to
// already be bound to a Session (via PersistSession.NewEntity/Load — not a
// detached, validate-only construction).
func (e *Entity) EnableAutoPersist() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return ErrNotBound
	}
	e.autoSave = true
	return nil
}

// DisableAutoPersist turns flush-on-mutation back off.
func (e *Entity) DisableAutoPersist() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoSave = false
}

// Save flushes the entity's current state to its bound Session.
func (e *Entity) Save(ctx context.Context) error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return ErrNotBound
	}
	return e.SaveBound(ctx, sess)
}

// SaveBound flushes to sess regardless of the entity's own bound
// session — the mechanism internal/managedvec uses to save many entities
// under one explicit transaction's Session (begin once, call SaveBound per
// item, commit once).
func (e *Entity) SaveBound(ctx context.Context, sess *engine.Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.schema.Validate(e.fields); err != nil {
		return err
	}

	schema := BuildTableSchema(e.schema)
	now := time.Now().UTC()
	values := cloneFields(e.fields)

	if !e.persisted {
		e.meta.Version = 1
		e.meta.TouchCount = 1
		e.meta.CreatedAt = now
		e.meta.UpdatedAt = now
		e.meta.LastTouchAt = now
		for k, v := range e.meta.toValues() {
			values[k] = v
		}
		if _, err := sess.Exec(ctx, insertSQL(e.schema.TableName, schema, values)); err != nil {
			return err
		}
		e.persisted = true
		e.dirty = map[string]bool{}
		return nil
	}

	expected := e.meta.Version
	newVersion := expected
	if newVersion < 1 {
		newVersion = 1
	}
	newVersion++

	updated := e.meta
	updated.Version = newVersion
	updated.TouchCount++
	updated.UpdatedAt = now
	updated.LastTouchAt = now
	for k, v := range updated.toValues() {
		values[k] = v
	}

	res, err := sess.Exec(ctx, updateSQL(e.schema.TableName, schema, values, e.meta.ID, expected))
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		return optimisticLockError(e.meta.ID, expected)
	}
	e.meta = updated
	e.dirty = map[string]bool{}
	return nil
}

// Delete removes the entity's row through its bound Session.
func (e *Entity) Delete(ctx context.Context) error {
	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()
	if sess == nil {
		return ErrNotBound
	}
	return e.DeleteBound(ctx, sess)
}

// DeleteBound removes the entity's row through sess, the managedvec-facing
// counterpart to SaveBound.
func (e *Entity) DeleteBound(ctx context.Context, sess *engine.Session) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.persisted {
		return nil
	}
	if _, err := sess.Exec(ctx, deleteSQL(e.schema.TableName, e.meta.ID)); err != nil {
		return err
	}
	e.persisted = false
	return nil
}
