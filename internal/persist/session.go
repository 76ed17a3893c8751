package persist

import (
	"context"
	"fmt"

	"github.com/kasuganosora/memdb/internal/dynschema"
	"github.com/kasuganosora/memdb/internal/engine"
	"github.com/kasuganosora/memdb/internal/value"
)

// IndexSpec names one secondary index a persisted type's definition wants:
// spec.md 4.10 generates `CREATE [UNIQUE] INDEX IF NOT EXISTS <derived
// name> ON <table>(<field>)` for every field marked index or unique.
type IndexSpec struct {
	Field  string
	Unique bool
}

func derivedIndexName(table string, ix IndexSpec) string {
	kind := "idx"
	if ix.Unique {
		kind = "uq"
	}
	return fmt.Sprintf("%s_%s_%s", kind, table, ix.Field)
}

// PersistSession is the persisted-object facade over one engine.Session:
// table provisioning, entity construction/loading, and the bound Session
// every Entity's Save/Delete route through.
type PersistSession struct {
	Sess *engine.Session
}

// NewPersistSession binds a persisted-object facade to sess.
func NewPersistSession(sess *engine.Session) *PersistSession {
	return &PersistSession{Sess: sess}
}

// EnsureTable creates ds's backing table, and any requested secondary
// indexes, if they do not already exist.
func (ps *PersistSession) EnsureTable(ctx context.Context, ds dynschema.DynamicSchema, indexes ...IndexSpec) error {
	schema := BuildTableSchema(ds)
	if _, err := ps.Sess.Exec(ctx, createTableSQL(ds.TableName, schema)); err != nil {
		return err
	}
	for _, ix := range indexes {
		if _, ok := ds.FieldByName(ix.Field); !ok {
			return fmt.Errorf("persist: index field %q is not declared by %s", ix.Field, ds.TableName)
		}
		name := derivedIndexName(ds.TableName, ix)
		if _, err := ps.Sess.Exec(ctx, createIndexSQL(name, ds.TableName, []string{ix.Field}, ix.Unique)); err != nil {
			return err
		}
	}
	return nil
}

// NewEntity builds a not-yet-persisted Entity of ds's type from draft,
// bound to ps's session.
func (ps *PersistSession) NewEntity(ds dynschema.DynamicSchema, draft *Draft) (*Entity, error) {
	return newEntity(ds, ps.Sess, draft.Fields)
}

// Load fetches one persisted instance of ds's type by id.
func (ps *PersistSession) Load(ctx context.Context, ds dynschema.DynamicSchema, id string) (*Entity, error) {
	res, err := ps.Sess.Query(ctx, selectByIDSQL(ds.TableName, id))
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, ErrNotFound
	}
	return entityFromRow(ds, ps.Sess, res.Schema, res.Rows[0]), nil
}

func entityFromRow(ds dynschema.DynamicSchema, sess *engine.Session, schema value.Schema, row value.Row) *Entity {
	get := func(name string) value.Value {
		if idx, ok := schema.FindColumnIndex(name); ok {
			return row[idx]
		}
		return value.Null()
	}

	id, _ := get("__persist_id").AsString()
	version, _ := get("__version").AsInt64()
	schemaVersion, _ := get("__schema_version").AsInt64()
	touchCount, _ := get("__touch_count").AsInt64()
	createdAt, _ := get("__created_at").AsTime()
	updatedAt, _ := get("__updated_at").AsTime()
	lastTouchAt, _ := get("__last_touch_at").AsTime()

	fields := make(map[string]value.Value, len(ds.Fields))
	for _, f := range ds.Fields {
		fields[f.Name] = get(f.Name)
	}

	return &Entity{
		schema: ds,
		sess:   sess,
		meta: Metadata{
			ID:            id,
			Version:       version,
			SchemaVersion: schemaVersion,
			TouchCount:    touchCount,
			CreatedAt:     createdAt,
			UpdatedAt:     updatedAt,
			LastTouchAt:   lastTouchAt,
		},
		fields:    fields,
		dirty:     map[string]bool{},
		persisted: true,
	}
}
