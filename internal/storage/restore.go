package storage

import (
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/value"
)

// RestoreRow installs row at rowID as if it had always been there, created by
// createdBy and never superseded. Used only by the persistence package while
// reconstructing a table's visible state from a snapshot plus WAL replay,
// where the original row identity must survive intact rather than being
// reassigned by the normal auto-increment path Insert uses.
func (s *Store) RestoreRow(table string, rowID uint64, row value.Row, createdBy mvcc.XID) error {
	t, err := s.Table(table)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ix := range t.indexes {
		ix.insert(row, rowID)
	}
	t.rows[rowID] = &rowVersion{createdBy: createdBy, data: row}
	if rowID >= t.nextRowID {
		t.nextRowID = rowID + 1
	}
	return nil
}
