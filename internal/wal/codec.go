package wal

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kasuganosora/memdb/internal/value"
)

// walValue is a gob-friendly projection of value.Value: the Value type
// itself carries unexported fields (kind/i/f/s/...), so every WAL record
// round-trips through this DTO instead of gob-encoding Values directly.
// Composite JSON payloads are re-flattened to bytes since gob can't encode
// an `any` field without every concrete type it might hold registered.
type walValue struct {
	Kind  value.Kind
	I     int64
	F     float64
	S     string
	B     bool
	T     time.Time
	Arr   []walValue
	JSON  []byte
}

func encodeValue(v value.Value) walValue {
	w := walValue{Kind: v.Kind()}
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
		w.Arr = make([]walValue, len(elems))
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

func decodeValue(w walValue) value.Value {
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

func encodeRow(row value.Row) []walValue {
	if row == nil {
		return nil
	}
	out := make([]walValue, len(row))
	for i, v := range row {
		out[i] = encodeValue(v)
	}
	return out
}

func decodeRow(ws []walValue) value.Row {
	if ws == nil {
		return nil
	}
	out := make(value.Row, len(ws))
	for i, w := range ws {
		out[i] = decodeValue(w)
	}
	return out
}

// walColumn/walTableSchema mirror value.Column/value.TableSchema with only
// exported, gob-safe fields.
type walColumn struct {
	Name       string
	TypeKind   value.DTKind
	ElemKind   value.DTKind // only meaningful when TypeKind == DTArray
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	HasRef     bool
	RefTable   string
	RefColumn  string
	HasDefault bool
	Default    walValue
}

type walTableSchema struct {
	Name    string
	Columns []walColumn
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

func encodeColumn(c value.Column) walColumn {
	wc := walColumn{
		Name:       c.Name,
		TypeKind:   c.Type.Kind(),
		Nullable:   c.Nullable,
		PrimaryKey: c.PrimaryKey,
		Unique:     c.Unique,
	}
	if c.Type.Kind() == value.DTArray {
		wc.ElemKind = c.Type.Elem().Kind()
	}
	if c.References != nil {
		wc.HasRef = true
		wc.RefTable = c.References.Table
		wc.RefColumn = c.References.Column
	}
	if c.Default != nil {
		wc.HasDefault = true
		wc.Default = encodeValue(*c.Default)
	}
	return wc
}

func decodeColumn(wc walColumn) value.Column {
	c := value.Column{
		Name:       wc.Name,
		Type:       dataType(wc.TypeKind, wc.ElemKind),
		Nullable:   wc.Nullable,
		PrimaryKey: wc.PrimaryKey,
		Unique:     wc.Unique,
	}
	if wc.HasRef {
		c = c.WithReferences(wc.RefTable, wc.RefColumn)
	}
	if wc.HasDefault {
		v := decodeValue(wc.Default)
		c = c.WithDefault(v)
	}
	return c
}

func encodeTableSchema(ts value.TableSchema) walTableSchema {
	cols := make([]walColumn, len(ts.Schema.Columns))
	for i, c := range ts.Schema.Columns {
		cols[i] = encodeColumn(c)
	}
	indexed := make([]string, 0, len(ts.IndexedColumns))
	for col := range ts.IndexedColumns {
		indexed = append(indexed, col)
	}
	return walTableSchema{Name: ts.Name, Columns: cols, Indexed: indexed}
}

func decodeTableSchema(wts walTableSchema) value.TableSchema {
	cols := make([]value.Column, len(wts.Columns))
	for i, wc := range wts.Columns {
		cols[i] = decodeColumn(wc)
	}
	ts := value.NewTableSchema(wts.Name, value.NewSchema(cols))
	for _, col := range wts.Indexed {
		ts = ts.WithIndex(col)
	}
	return ts
}
