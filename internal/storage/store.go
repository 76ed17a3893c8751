package storage

import (
	"sync"

	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/value"
)

// Store owns every table in the database plus the transaction manager that
// gives its MVCC versions meaning. A table's row storage and secondary
// indexes are guarded by the table's own lock; Store's lock only protects
// the table-name -> *Table map itself.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*Table
	txMgr  *mvcc.Manager
}

// NewStore builds an empty store bound to txMgr.
func NewStore(txMgr *mvcc.Manager) *Store {
	return &Store{tables: map[string]*Table{}, txMgr: txMgr}
}

// TxManager exposes the bound transaction manager for callers (the engine,
// executors) that need to begin/commit/rollback directly.
func (s *Store) TxManager() *mvcc.Manager { return s.txMgr }

// CreateTable registers a new, empty table.
func (s *Store) CreateTable(schema value.TableSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := schema.Name
	if _, ok := s.tables[name]; ok {
		return &TableExistsError{Table: name}
	}
	s.tables[name] = NewTable(schema)
	return nil
}

// DropTable removes a table and all its indexes.
func (s *Store) DropTable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		return &TableNotFoundError{Table: name}
	}
	delete(s.tables, name)
	return nil
}

// Table looks up a table by name.
func (s *Store) Table(name string) (*Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, &TableNotFoundError{Table: name}
	}
	return t, nil
}

// TableNames lists every registered table.
func (s *Store) TableNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	return names
}

// CreateIndex builds a secondary index over table's columns.
func (s *Store) CreateIndex(name, table string, columns []string, unique bool) error {
	t, err := s.Table(table)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.indexes[name]; ok {
		return &IndexExistsError{Table: table, Index: name}
	}
	ix, err := NewIndex(name, t.schema.Schema, columns, unique)
	if err != nil {
		return err
	}
	for rowID, rv := range t.rows {
		// Index every current-tip version; older chain links are only
		// visible to readers that began before this DDL and aren't
		// re-indexed, matching the catalog's copy-on-write boundary.
		if err := ix.checkUnique(rv.data, rowID); err != nil {
			return err
		}
	}
	for rowID, rv := range t.rows {
		ix.insert(rv.data, rowID)
	}
	t.indexes[name] = ix
	return nil
}

// DropIndex removes a secondary index.
func (s *Store) DropIndex(name, table string) error {
	t, err := s.Table(table)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.indexes[name]; !ok {
		return &IndexNotFoundError{Table: table, Index: name}
	}
	delete(t.indexes, name)
	return nil
}

// Index returns the named index, for planner index-selection and direct
// lookups.
func (s *Store) Index(table, name string) (*Index, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ix, ok := t.indexes[name]
	if !ok {
		return nil, &IndexNotFoundError{Table: table, Index: name}
	}
	return ix, nil
}

// Insert adds row to table under xid's transaction and records the change.
func (s *Store) Insert(xid mvcc.XID, table string, row value.Row) (uint64, error) {
	t, err := s.Table(table)
	if err != nil {
		return 0, err
	}
	if err := row.Validate(t.schema.Schema); err != nil {
		return 0, err
	}
	t.mu.Lock()
	rowID, err := t.insertLocked(xid, row)
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}
	_ = s.txMgr.RecordChange(xid, mvcc.Change{Kind: mvcc.ChangeInsertRow, Table: table, RowID: rowID, New: row})
	return rowID, nil
}

// Update replaces rowID's visible version (per the transaction's snapshot)
// with newRow.
func (s *Store) Update(xid mvcc.XID, table string, rowID uint64, newRow value.Row) error {
	t, err := s.Table(table)
	if err != nil {
		return err
	}
	if err := newRow.Validate(t.schema.Schema); err != nil {
		return err
	}
	tx, err := s.txMgr.Get(xid)
	if err != nil {
		return err
	}
	snap := tx.Snapshot()
	aborted := s.txMgr.AbortedSet()

	t.mu.Lock()
	old, err := t.updateLocked(xid, rowID, newRow, snap, aborted)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return s.txMgr.RecordChange(xid, mvcc.Change{Kind: mvcc.ChangeUpdateRow, Table: table, RowID: rowID, Old: old, New: newRow})
}

// Delete marks rowID's visible version deleted by xid.
func (s *Store) Delete(xid mvcc.XID, table string, rowID uint64) error {
	t, err := s.Table(table)
	if err != nil {
		return err
	}
	tx, err := s.txMgr.Get(xid)
	if err != nil {
		return err
	}
	snap := tx.Snapshot()
	aborted := s.txMgr.AbortedSet()

	t.mu.Lock()
	old, err := t.deleteLocked(xid, rowID, snap, aborted)
	t.mu.Unlock()
	if err != nil {
		return err
	}
	return s.txMgr.RecordChange(xid, mvcc.Change{Kind: mvcc.ChangeDeleteRow, Table: table, RowID: rowID, Old: old})
}

// Scan returns every row of table visible to xid's snapshot.
func (s *Store) Scan(xid mvcc.XID, table string) ([]VisibleRow, error) {
	t, err := s.Table(table)
	if err != nil {
		return nil, err
	}
	tx, err := s.txMgr.Get(xid)
	if err != nil {
		return nil, err
	}
	return t.Scan(tx.Snapshot(), s.txMgr.AbortedSet()), nil
}

// ValidateSerializable implements the first-committer-wins check: a
// Serializable transaction may not commit if any row in its write set was
// last touched by a transaction that committed after this one's snapshot
// was taken. Lower isolation levels skip the check entirely.
func (s *Store) ValidateSerializable(tx *mvcc.Transaction) error {
	if tx.Level() != mvcc.Serializable {
		return nil
	}
	snap := tx.Snapshot()
	for _, w := range tx.WriteSet() {
		t, err := s.Table(w.Table)
		if err != nil {
			continue
		}
		writer, ok := t.writerOf(w.RowID)
		if !ok || writer == tx.ID() {
			continue
		}
		if !snap.IsActive(writer) && writer >= snap.Xmax {
			return &SerializationError{Table: w.Table, RowID: w.RowID}
		}
	}
	return nil
}

// Commit validates (for Serializable) and commits xid.
func (s *Store) Commit(xid mvcc.XID) error {
	return s.txMgr.Commit(xid, s.ValidateSerializable)
}

// Rollback aborts xid. No physical undo is needed: MVCC visibility already
// treats an aborted creator's rows as invisible and an aborted deleter's
// target row as still visible.
func (s *Store) Rollback(xid mvcc.XID) error {
	return s.txMgr.Rollback(xid, nil)
}
