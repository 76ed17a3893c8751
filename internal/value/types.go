// Package value implements the tagged value union, data types, columns,
// schemas and rows that every other package in this module builds on.
package value

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DTKind enumerates the data type tags. The richer set here (not the
// four-variant version some legacy notes describe) is authoritative.
type DTKind int

const (
	DTInteger DTKind = iota
	DTFloat
	DTText
	DTBoolean
	DTTimestamp
	DTDate
	DTUUID
	DTArray
	DTJSON
	DTUnknown
)

func (k DTKind) String() string {
	switch k {
	case DTInteger:
		return "INTEGER"
	case DTFloat:
		return "FLOAT"
	case DTText:
		return "TEXT"
	case DTBoolean:
		return "BOOLEAN"
	case DTTimestamp:
		return "TIMESTAMP"
	case DTDate:
		return "DATE"
	case DTUUID:
		return "UUID"
	case DTArray:
		return "ARRAY"
	case DTJSON:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}

// DataType is a (possibly parameterized, for Array) data type descriptor.
type DataType struct {
	kind DTKind
	elem *DataType // only set when kind == DTArray
}

func Integer() DataType  { return DataType{kind: DTInteger} }
func Float() DataType    { return DataType{kind: DTFloat} }
func Text() DataType     { return DataType{kind: DTText} }
func Boolean() DataType  { return DataType{kind: DTBoolean} }
func Timestamp() DataType { return DataType{kind: DTTimestamp} }
func Date() DataType     { return DataType{kind: DTDate} }
func UUIDType() DataType { return DataType{kind: DTUUID} }
func JSON() DataType     { return DataType{kind: DTJSON} }
func Unknown() DataType  { return DataType{kind: DTUnknown} }
func Array(elem DataType) DataType {
	e := elem
	return DataType{kind: DTArray, elem: &e}
}

func (d DataType) Kind() DTKind { return d.kind }

func (d DataType) Elem() DataType {
	if d.elem == nil {
		return Unknown()
	}
	return *d.elem
}

func (d DataType) String() string {
	if d.kind == DTArray {
		return d.Elem().String() + "[]"
	}
	return d.kind.String()
}

func (d DataType) Equal(other DataType) bool {
	if d.kind != other.kind {
		return false
	}
	if d.kind == DTArray {
		return d.Elem().Equal(other.Elem())
	}
	return true
}

// IsCompatible reports whether v may be stored in a column of type d,
// allowing a fixed set of explicit coercions.
func (d DataType) IsCompatible(v Value) bool {
	if v.IsNull() {
		return true
	}
	switch d.kind {
	case DTUnknown:
		return true
	case DTInteger:
		return v.kind == KindInteger
	case DTFloat:
		return v.kind == KindFloat || v.kind == KindInteger
	case DTText:
		return v.kind == KindText
	case DTBoolean:
		return v.kind == KindBoolean
	case DTTimestamp:
		return v.kind == KindTimestamp || v.kind == KindText
	case DTDate:
		return v.kind == KindDate || v.kind == KindText
	case DTUUID:
		return v.kind == KindUUID || v.kind == KindText
	case DTJSON:
		return v.kind == KindJSON || v.kind == KindText
	case DTArray:
		if v.kind != KindArray {
			return false
		}
		elem := d.Elem()
		for _, e := range v.arr {
			if !elem.IsCompatible(e) {
				return false
			}
		}
		return true
	}
	return false
}

// CanCastTo reports whether a value of this type can ever be cast to other.
func (d DataType) CanCastTo(other DataType) bool {
	if d.Equal(other) {
		return true
	}
	if d.kind == DTUnknown || other.kind == DTUnknown {
		return true
	}
	switch {
	case d.kind == DTInteger && other.kind == DTFloat:
		return true
	case d.kind == DTInteger && other.kind == DTText:
		return true
	case d.kind == DTFloat && other.kind == DTText:
		return true
	case d.kind == DTBoolean && other.kind == DTText:
		return true
	case d.kind == DTTimestamp && other.kind == DTText:
		return true
	case d.kind == DTDate && other.kind == DTText:
		return true
	case d.kind == DTUUID && other.kind == DTText:
		return true
	case d.kind == DTText && other.kind == DTUUID:
		return true
	case d.kind == DTText && other.kind == DTTimestamp:
		return true
	case d.kind == DTText && other.kind == DTDate:
		return true
	case d.kind == DTText && other.kind == DTJSON:
		return true
	case d.kind == DTJSON && other.kind == DTText:
		return true
	}
	return false
}

// Cast converts v to this data type, or returns a TypeMismatch-flavored error.
func (d DataType) Cast(v Value) (Value, error) {
	if v.IsNull() {
		return Null(), nil
	}
	if d.isExactMatch(v) {
		return v, nil
	}
	switch {
	case d.kind == DTFloat && v.kind == KindInteger:
		return NewFloat(float64(v.i)), nil
	case d.kind == DTInteger && v.kind == KindFloat:
		return NewInteger(int64(v.f)), nil
	case d.kind == DTTimestamp && v.kind == KindText:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, v.s); err == nil {
				return NewTimestamp(t.UTC()), nil
			}
		}
		return Value{}, fmt.Errorf("invalid timestamp format: %s", v.s)
	case d.kind == DTDate && v.kind == KindText:
		if t, err := time.Parse("2006-01-02", v.s); err == nil {
			return NewDate(t), nil
		}
		return Value{}, fmt.Errorf("invalid date format: %s", v.s)
	case d.kind == DTUUID && v.kind == KindText:
		if u, err := uuid.Parse(v.s); err == nil {
			return NewUUID(u), nil
		}
		return Value{}, fmt.Errorf("invalid uuid format: %s", v.s)
	case d.kind == DTJSON && v.kind == KindText:
		return NewJSONFromText(v.s)
	case d.kind == DTArray && v.kind == KindText:
		return parseArrayLiteral(v.s, d.Elem())
	case d.kind == DTText:
		return NewText(v.String()), nil
	}
	return Value{}, fmt.Errorf("cannot cast %s to %s", v.TypeName(), d.String())
}

func (d DataType) isExactMatch(v Value) bool {
	switch d.kind {
	case DTInteger:
		return v.kind == KindInteger
	case DTFloat:
		return v.kind == KindFloat
	case DTText:
		return v.kind == KindText
	case DTBoolean:
		return v.kind == KindBoolean
	case DTTimestamp:
		return v.kind == KindTimestamp
	case DTDate:
		return v.kind == KindDate
	case DTUUID:
		return v.kind == KindUUID
	case DTJSON:
		return v.kind == KindJSON
	case DTArray:
		return v.kind == KindArray
	}
	return false
}

func parseArrayLiteral(s string, elem DataType) (Value, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 {
		return Value{}, fmt.Errorf("invalid array format: %s", s)
	}
	open, close := trimmed[0], trimmed[len(trimmed)-1]
	if !((open == '{' && close == '}') || (open == '[' && close == ']')) {
		return Value{}, fmt.Errorf("invalid array format: %s", s)
	}
	content := trimmed[1 : len(trimmed)-1]
	if strings.TrimSpace(content) == "" {
		return NewArray(nil), nil
	}
	parts := strings.Split(content, ",")
	out := make([]Value, 0, len(parts))
	for _, p := range parts {
		v, err := elem.Cast(NewText(strings.TrimSpace(p)))
		if err != nil {
			return Value{}, err
		}
		out = append(out, v)
	}
	return NewArray(out), nil
}

// ForeignKey names the (table, column) a column's values must reference.
type ForeignKey struct {
	Table  string
	Column string
}

// Column describes a single schema column.
type Column struct {
	Name       string
	Type       DataType
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	References *ForeignKey
	Default    *Value
}

// NewColumn builds a nullable column with no constraints.
func NewColumn(name string, t DataType) Column {
	return Column{Name: name, Type: t, Nullable: true}
}

// AsPrimaryKey returns a copy marked primary key (implicitly non-null, unique).
func (c Column) AsPrimaryKey() Column {
	c.PrimaryKey = true
	c.Nullable = false
	c.Unique = true
	return c
}

// AsNotNull returns a copy marked not-null.
func (c Column) AsNotNull() Column {
	c.Nullable = false
	return c
}

// AsUnique returns a copy marked unique.
func (c Column) AsUnique() Column {
	c.Unique = true
	return c
}

// WithReferences returns a copy that references table.column.
func (c Column) WithReferences(table, column string) Column {
	fk := ForeignKey{Table: table, Column: column}
	c.References = &fk
	return c
}

// WithDefault returns a copy carrying a default value.
func (c Column) WithDefault(v Value) Column {
	c.Default = &v
	return c
}

// Validate checks v against this column's nullability and type.
func (c Column) Validate(v Value) error {
	if v.IsNull() {
		if !c.Nullable {
			return fmt.Errorf("column %q is not nullable", c.Name)
		}
		return nil
	}
	if !c.Type.IsCompatible(v) {
		return fmt.Errorf("column %q: value of type %s is not compatible with %s", c.Name, v.TypeName(), c.Type.String())
	}
	return nil
}
