// Package persistence reconstructs a storage.Store and catalog.Catalog
// across restarts: a DatabaseSnapshot captures every table's committed rows
// atomically, and a Manager ties that snapshot to the internal/wal log it
// sits in front of, deciding when a checkpoint is due and replaying
// whatever the log holds past the last one.
package persistence

import (
	"time"

	"github.com/kasuganosora/memdb/internal/value"
)

// snapshotFormatVersion guards against loading a snapshot written by an
// incompatible future layout.
const snapshotFormatVersion = 1

// DatabaseSnapshot serializes every TableSchema in a catalog plus its
// visible (committed) rows, per spec.md 4.5.
type DatabaseSnapshot struct {
	FormatVersion int
	CreatedAt     time.Time
	// WALPosition is the WAL offset this snapshot is consistent with. Since
	// a checkpoint always truncates the WAL to empty right after writing
	// the snapshot that supersedes it, this is purely a diagnostic/ordering
	// marker — replay after load always starts the (now-short) WAL file
	// from its beginning.
	WALPosition int64
	Tables      []snapTable
}

type snapTable struct {
	Schema snapTableSchema
	Rows   []snapRow
}

type snapRow struct {
	RowID  uint64
	Values []snapValue
}

func newSnapshot(walPos int64, tables []tableState) DatabaseSnapshot {
	out := DatabaseSnapshot{
		FormatVersion: snapshotFormatVersion,
		CreatedAt:     time.Now(),
		WALPosition:   walPos,
		Tables:        make([]snapTable, 0, len(tables)),
	}
	for _, t := range tables {
		st := snapTable{Schema: encodeTableSchema(t.Schema), Rows: make([]snapRow, 0, len(t.Rows))}
		for rowID, row := range t.Rows {
			st.Rows = append(st.Rows, snapRow{RowID: rowID, Values: encodeRow(row)})
		}
		out.Tables = append(out.Tables, st)
	}
	return out
}

// tableState is one table's schema plus its currently visible rows, the
// shape Manager.Checkpoint gathers from the store before serializing.
type tableState struct {
	Schema value.TableSchema
	Rows   map[uint64]value.Row
}
