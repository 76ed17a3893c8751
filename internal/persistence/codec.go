package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/memdb/internal/value"
)

// snapValue is a gob-friendly projection of value.Value, mirroring the
// internal/wal package's walValue: value.Value carries unexported fields,
// so a snapshot round-trips every cell through this DTO rather than gob
// encoding Values directly.
type snapValue struct {
	Kind value.Kind
	I    int64
	F    float64
	S    string
	B    bool
	T    time.Time
	Arr  []snapValue
	JSON []byte
}

func encodeValue(v value.Value) snapValue {
	w := snapValue{Kind: v.Kind()}
	switch v.Kind() {
	case value.KindInteger:
		w.I, _ = v.AsInt64()
	case value.KindFloat:
		w.F, _ = v.AsFloat64()
	case value.KindText, value.KindUUID:
		w.S, _ = v.AsString()
	case value.KindBoolean:
		w.B = v.AsBool()
	case value.KindTimestamp, value.KindDate:
		w.T, _ = v.AsTime()
	case value.KindArray:
		elems, _ := v.AsArray()
		w.Arr = make([]snapValue, len(elems))
		for i, e := range elems {
			w.Arr[i] = encodeValue(e)
		}
	case value.KindJSON:
		tree, _ := v.AsJSON()
		b, _ := json.Marshal(tree)
		w.JSON = b
	}
	return w
}

func decodeValue(w snapValue) value.Value {
	switch w.Kind {
	case value.KindInteger:
		return value.NewInteger(w.I)
	case value.KindFloat:
		return value.NewFloat(w.F)
	case value.KindText:
		return value.NewText(w.S)
	case value.KindUUID:
		u, _ := uuid.Parse(w.S)
		return value.NewUUID(u)
	case value.KindBoolean:
		return value.NewBoolean(w.B)
	case value.KindTimestamp:
		return value.NewTimestamp(w.T)
	case value.KindDate:
		return value.NewDate(w.T)
	case value.KindArray:
		elems := make([]value.Value, len(w.Arr))
		for i, e := range w.Arr {
			elems[i] = decodeValue(e)
		}
		return value.NewArray(elems)
	case value.KindJSON:
		var tree any
		_ = json.Unmarshal(w.JSON, &tree)
		return value.NewJSON(tree)
	default:
		return value.Null()
	}
}

func encodeRow(row value.Row) []snapValue {
	if row == nil {
		return nil
	}
	out := make([]snapValue, len(row))
	for i, v := range row {
		out[i] = encodeValue(v)
	}
	return out
}

func decodeRow(ws []snapValue) value.Row {
	if ws == nil {
		return nil
	}
	out := make(value.Row, len(ws))
	for i, w := range ws {
		out[i] = decodeValue(w)
	}
	return out
}

// snapColumn/snapTableSchema mirror value.Column/value.TableSchema with only
// exported, gob-safe fields — the same projection internal/wal uses, kept
// separate here since a snapshot and a WAL record are unrelated on-disk
// formats with independent evolution.
type snapColumn struct {
	Name       string
	TypeKind   value.DTKind
	ElemKind   value.DTKind
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	HasRef     bool
	RefTable   string
	RefColumn  string
	HasDefault bool
	Default    snapValue
}

type snapTableSchema struct {
	Name    string
	Columns []snapColumn
	Indexed []string
}

func dataType(kind, elemKind value.DTKind) value.DataType {
	switch kind {
	case value.DTArray:
		return value.Array(dataType(elemKind, value.DTUnknown))
	case value.DTInteger:
		return value.Integer()
	case value.DTFloat:
		return value.Float()
	case value.DTText:
		return value.Text()
	case value.DTBoolean:
		return value.Boolean()
	case value.DTTimestamp:
		return value.Timestamp()
	case value.DTDate:
		return value.Date()
	case value.DTUUID:
		return value.UUIDType()
	case value.DTJSON:
		return value.JSON()
	default:
		return value.Unknown()
	}
}

func encodeColumn(c value.Column) snapColumn {
	sc := snapColumn{
		Name:       c.Name,
		TypeKind:   c.Type.Kind(),
		Nullable:   c.Nullable,
		PrimaryKey: c.PrimaryKey,
		Unique:     c.Unique,
	}
	if c.Type.Kind() == value.DTArray {
		sc.ElemKind = c.Type.Elem().Kind()
	}
	if c.References != nil {
		sc.HasRef = true
		sc.RefTable = c.References.Table
		sc.RefColumn = c.References.Column
	}
	if c.Default != nil {
		sc.HasDefault = true
		sc.Default = encodeValue(*c.Default)
	}
	return sc
}

func decodeColumn(sc snapColumn) value.Column {
	c := value.Column{
		Name:       sc.Name,
		Type:       dataType(sc.TypeKind, sc.ElemKind),
		Nullable:   sc.Nullable,
		PrimaryKey: sc.PrimaryKey,
		Unique:     sc.Unique,
	}
	if sc.HasRef {
		c = c.WithReferences(sc.RefTable, sc.RefColumn)
	}
	if sc.HasDefault {
		c = c.WithDefault(decodeValue(sc.Default))
	}
	return c
}

func encodeTableSchema(ts value.TableSchema) snapTableSchema {
	cols := make([]snapColumn, len(ts.Schema.Columns))
	for i, c := range ts.Schema.Columns {
		cols[i] = encodeColumn(c)
	}
	indexed := make([]string, 0, len(ts.IndexedColumns))
	for col := range ts.IndexedColumns {
		indexed = append(indexed, col)
	}
	return snapTableSchema{Name: ts.Name, Columns: cols, Indexed: indexed}
}

func decodeTableSchema(sts snapTableSchema) value.TableSchema {
	cols := make([]value.Column, len(sts.Columns))
	for i, sc := range sts.Columns {
		cols[i] = decodeColumn(sc)
	}
	ts := value.NewTableSchema(sts.Name, value.NewSchema(cols))
	for _, col := range sts.Indexed {
		ts = ts.WithIndex(col)
	}
	return ts
}
