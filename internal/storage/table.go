package storage

import (
	"sync"

	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/value"
)

// rowVersion is one MVCC version of a row. Update chains a new version onto
// the old one via next, the way a heap-only-tuple chain works: readers with
// an older snapshot walk next until they find a version visible to them.
type rowVersion struct {
	createdBy mvcc.XID
	deletedBy mvcc.XID
	data      value.Row
	next      *rowVersion
}

// Table is one table's row store plus its secondary indexes.
type Table struct {
	mu        sync.RWMutex
	schema    value.TableSchema
	rows      map[uint64]*rowVersion
	nextRowID uint64
	indexes   map[string]*Index
}

// NewTable allocates an empty table for schema.
func NewTable(schema value.TableSchema) *Table {
	return &Table{
		schema:    schema,
		rows:      map[uint64]*rowVersion{},
		nextRowID: 1,
		indexes:   map[string]*Index{},
	}
}

// Schema returns the table's schema.
func (t *Table) Schema() value.TableSchema {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.schema
}

// IndexNames lists the table's secondary indexes.
func (t *Table) IndexNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.indexes))
	for n := range t.indexes {
		names = append(names, n)
	}
	return names
}

// IndexOn returns a single-column index over column, if one exists. The
// planner's index-selection only ever rewrites single-equality scans, so a
// single-column index is all it ever asks for.
func (t *Table) IndexOn(column string) (*Index, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ix := range t.indexes {
		if len(ix.Columns) == 1 && ix.Columns[0] == column {
			return ix, true
		}
	}
	return nil, false
}

// VisibleRow is one row as seen by a particular snapshot.
type VisibleRow struct {
	RowID uint64
	Data  value.Row
}

func visibleVersion(rv *rowVersion, snap *mvcc.Snapshot, aborted map[mvcc.XID]bool) *rowVersion {
	for v := rv; v != nil; v = v.next {
		if snap.Visible(v.createdBy, v.deletedBy, aborted) {
			return v
		}
	}
	return nil
}

// Scan returns every row visible to snap, in unspecified order.
func (t *Table) Scan(snap *mvcc.Snapshot, aborted map[mvcc.XID]bool) []VisibleRow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]VisibleRow, 0, len(t.rows))
	for rowID, rv := range t.rows {
		if v := visibleVersion(rv, snap, aborted); v != nil {
			out = append(out, VisibleRow{RowID: rowID, Data: v.data})
		}
	}
	return out
}

// Get returns the version of rowID visible to snap, if any.
func (t *Table) Get(rowID uint64, snap *mvcc.Snapshot, aborted map[mvcc.XID]bool) (value.Row, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rv, ok := t.rows[rowID]
	if !ok {
		return nil, false
	}
	v := visibleVersion(rv, snap, aborted)
	if v == nil {
		return nil, false
	}
	return v.data, true
}

func (t *Table) insertLocked(xid mvcc.XID, row value.Row) (uint64, error) {
	rowID := t.nextRowID
	for _, ix := range t.indexes {
		if err := ix.checkUnique(row, rowID); err != nil {
			return 0, err
		}
	}
	t.nextRowID++
	for _, ix := range t.indexes {
		ix.insert(row, rowID)
	}
	t.rows[rowID] = &rowVersion{createdBy: xid, data: row}
	return rowID, nil
}

// tipOrConflict returns the row's current (newest) version, erroring if
// either the row doesn't exist or the tip isn't visible to snap — the
// latter means someone else has already superseded the version this
// transaction was looking at, which must fail now rather than silently
// rewrite history further down the version chain.
func (t *Table) tipOrConflict(rowID uint64, snap *mvcc.Snapshot, aborted map[mvcc.XID]bool) (*rowVersion, error) {
	tip, ok := t.rows[rowID]
	if !ok {
		return nil, &RowNotFoundError{Table: t.schema.Name, RowID: rowID}
	}
	if !snap.Visible(tip.createdBy, tip.deletedBy, aborted) {
		return nil, &WriteConflictError{Table: t.schema.Name, RowID: rowID}
	}
	return tip, nil
}

func (t *Table) updateLocked(xid mvcc.XID, rowID uint64, newRow value.Row, snap *mvcc.Snapshot, aborted map[mvcc.XID]bool) (value.Row, error) {
	tip, err := t.tipOrConflict(rowID, snap, aborted)
	if err != nil {
		return nil, err
	}
	for _, ix := range t.indexes {
		if err := ix.checkUnique(newRow, rowID); err != nil {
			return nil, err
		}
	}
	for _, ix := range t.indexes {
		ix.remove(tip.data, rowID)
		ix.insert(newRow, rowID)
	}
	tip.deletedBy = xid
	t.rows[rowID] = &rowVersion{createdBy: xid, data: newRow, next: tip}
	return tip.data, nil
}

func (t *Table) deleteLocked(xid mvcc.XID, rowID uint64, snap *mvcc.Snapshot, aborted map[mvcc.XID]bool) (value.Row, error) {
	tip, err := t.tipOrConflict(rowID, snap, aborted)
	if err != nil {
		return nil, err
	}
	tip.deletedBy = xid
	for _, ix := range t.indexes {
		ix.remove(tip.data, rowID)
	}
	return tip.data, nil
}

// writerOf reports which transaction most recently touched rowID: its
// creator if it was never superseded, otherwise the one that superseded it.
func (t *Table) writerOf(rowID uint64) (mvcc.XID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rv, ok := t.rows[rowID]
	if !ok {
		return mvcc.XIDNone, false
	}
	if rv.deletedBy != mvcc.XIDNone {
		return rv.deletedBy, true
	}
	return rv.createdBy, true
}
