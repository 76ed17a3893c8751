// Package wal implements the append-only write-ahead log every mutating
// statement goes through before its effect is considered durable: a
// length-prefixed, checksummed binary record stream with Sync/Group/Async/
// None durability modes, following the row-level LSN-and-checkpoint shape
// the teacher's storage engine uses for crash recovery.
package wal

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/kasuganosora/memdb/internal/value"
)

// OpType tags which mutation a Record describes.
type OpType uint8

const (
	OpCreateTable OpType = iota + 1
	OpDropTable
	OpCreateIndex
	OpDropIndex
	OpInsert
	OpUpdate
	OpDelete
)

func (op OpType) String() string {
	switch op {
	case OpCreateTable:
		return "CREATE_TABLE"
	case OpDropTable:
		return "DROP_TABLE"
	case OpCreateIndex:
		return "CREATE_INDEX"
	case OpDropIndex:
		return "DROP_INDEX"
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Record is one WAL entry. Only the fields relevant to Op are populated,
// mirroring spec.md 4.5's entry list: CreateTable(schema), DropTable(name,
// final_table), CreateIndex(table,column), Insert(table,row),
// Update(table,row_index,old,new), Delete(table,row_index,row).
type Record struct {
	Op        OpType
	Timestamp time.Time
	Table     string

	// OpCreateTable
	Schema walTableSchema

	// OpDropTable
	FinalTable bool

	// OpCreateIndex / OpDropIndex
	IndexName    string
	IndexColumns []string
	IndexUnique  bool

	// OpInsert / OpUpdate / OpDelete
	RowID uint64
	Old   []walValue
	New   []walValue
}

// NewInsert builds an Insert record from an in-memory row.
func NewInsert(table string, rowID uint64, row value.Row) Record {
	return Record{Op: OpInsert, Table: table, RowID: rowID, New: encodeRow(row)}
}

// NewUpdate builds an Update record carrying both row images, needed for
// UNDO on rollback and REDO on crash recovery.
func NewUpdate(table string, rowID uint64, old, new_ value.Row) Record {
	return Record{Op: OpUpdate, Table: table, RowID: rowID, Old: encodeRow(old), New: encodeRow(new_)}
}

// NewDelete builds a Delete record carrying the row's last image.
func NewDelete(table string, rowID uint64, old value.Row) Record {
	return Record{Op: OpDelete, Table: table, RowID: rowID, Old: encodeRow(old)}
}

// NewCreateTable builds a CreateTable record from a table schema.
func NewCreateTable(schema value.TableSchema) Record {
	return Record{Op: OpCreateTable, Table: schema.Name, Schema: encodeTableSchema(schema)}
}

// NewDropTable builds a DropTable record.
func NewDropTable(table string, final bool) Record {
	return Record{Op: OpDropTable, Table: table, FinalTable: final}
}

// NewCreateIndex builds a CreateIndex record.
func NewCreateIndex(name, table string, columns []string, unique bool) Record {
	return Record{Op: OpCreateIndex, Table: table, IndexName: name, IndexColumns: columns, IndexUnique: unique}
}

// NewDropIndex builds a DropIndex record.
func NewDropIndex(name, table string) Record {
	return Record{Op: OpDropIndex, Table: table, IndexName: name}
}

// Row decodes a record's New row (Insert/Update).
func (r Record) Row() value.Row { return decodeRow(r.New) }

// OldRow decodes a record's Old row (Update/Delete).
func (r Record) OldRow() value.Row { return decodeRow(r.Old) }

// TableSchema decodes a CreateTable record's schema.
func (r Record) TableSchema() value.TableSchema { return decodeTableSchema(r.Schema) }

func encode(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(payload []byte) (Record, error) {
	var rec Record
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
