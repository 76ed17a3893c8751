// Package dynschema builds a DynamicSchema — a persisted type's field list,
// each with a SQL type and a nullability flag — from either a CREATE TABLE
// statement's text or a JSON Schema document, following the dual-source
// definition internal/persist's dynamic (non-generated) entities need.
package dynschema

import (
	"fmt"

	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// Field is one column of a DynamicSchema.
type Field struct {
	Name     string
	Type     value.DataType
	Nullable bool
}

// DynamicSchema is a persisted type defined at runtime rather than by
// generated code: a table name plus its field list.
type DynamicSchema struct {
	TableName string
	Fields    []Field

	byName map[string]int
}

// index builds (or rebuilds) the name lookup byName relies on; called once
// by the two constructors below so FieldByName works on any DynamicSchema
// built through this package.
func (ds *DynamicSchema) index() {
	ds.byName = make(map[string]int, len(ds.Fields))
	for i, f := range ds.Fields {
		ds.byName[f.Name] = i
	}
}

// FieldByName looks up a field by name.
func (ds DynamicSchema) FieldByName(name string) (Field, bool) {
	i, ok := ds.byName[name]
	if !ok {
		return Field{}, false
	}
	return ds.Fields[i], true
}

// ToSchema renders the field list as a value.Schema suitable for
// value.NewTableSchema, the shape internal/persist needs to generate
// CREATE TABLE/INSERT/UPDATE SQL against a dynamically-defined table.
func (ds DynamicSchema) ToSchema() value.Schema {
	cols := make([]value.Column, len(ds.Fields))
	for i, f := range ds.Fields {
		col := value.NewColumn(f.Name, f.Type)
		col.Nullable = f.Nullable
		cols[i] = col
	}
	return value.NewSchema(cols)
}

// ValidationError reports a field that failed DynamicSchema.Validate:
// either a required field was missing/null, a value's type didn't match
// its field's declared type, or the map carried a field the schema never
// declared.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dynschema: field %q: %s", e.Field, e.Reason)
}

// Validate checks values (a Draft or an applied Patch's resulting state)
// against ds: every non-nullable field must be present and non-null, every
// present value must be type-compatible with its field, and every key in
// values must name a declared field.
func (ds DynamicSchema) Validate(values map[string]value.Value) error {
	for _, f := range ds.Fields {
		v, ok := values[f.Name]
		if !ok || v.IsNull() {
			if !f.Nullable {
				return &ValidationError{Field: f.Name, Reason: "required field is missing or null"}
			}
			continue
		}
		if !f.Type.IsCompatible(v) {
			return &ValidationError{Field: f.Name, Reason: fmt.Sprintf("value is not compatible with %s", f.Type)}
		}
	}
	for name := range values {
		if _, ok := ds.byName[name]; !ok {
			return &ValidationError{Field: name, Reason: "not declared by this schema"}
		}
	}
	return nil
}

// FromDDL parses a single CREATE TABLE statement into a DynamicSchema,
// reusing the same sqlparser/tidb-grammar adapter the SQL engine parses
// regular statements with rather than a second, bespoke DDL grammar.
func FromDDL(ddl string) (DynamicSchema, error) {
	stmt, err := sqlparser.New().ParseOne(ddl)
	if err != nil {
		return DynamicSchema{}, fmt.Errorf("dynschema: parse DDL: %w", err)
	}
	if stmt.Kind != sqlparser.StmtCreateTable {
		return DynamicSchema{}, fmt.Errorf("dynschema: expected CREATE TABLE, got %s", stmt.Kind)
	}
	ct := stmt.CreateTable
	ds := DynamicSchema{TableName: ct.Table, Fields: make([]Field, len(ct.Columns))}
	for i, cd := range ct.Columns {
		ds.Fields[i] = Field{Name: cd.Name, Type: cd.Type, Nullable: cd.Nullable}
	}
	ds.index()
	return ds, nil
}
