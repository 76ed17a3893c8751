package mvcc

import "github.com/kasuganosora/memdb/internal/value"

// ChangeKind enumerates the change-log entry kinds.
type ChangeKind int

const (
	ChangeInsertRow ChangeKind = iota
	ChangeUpdateRow
	ChangeDeleteRow
)

// Change is one entry in a transaction's change log, enough information to
// reverse the operation on rollback.
type Change struct {
	Kind  ChangeKind
	Table string
	RowID uint64
	Old   value.Row // populated for Update/Delete
	New   value.Row // populated for Insert/Update
}
