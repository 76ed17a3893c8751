package storage

import "fmt"

// TableNotFoundError reports a reference to a table that does not exist.
type TableNotFoundError struct{ Table string }

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q does not exist", e.Table)
}

// TableExistsError reports CREATE TABLE against a name already in use.
type TableExistsError struct{ Table string }

func (e *TableExistsError) Error() string {
	return fmt.Sprintf("table %q already exists", e.Table)
}

// RowNotFoundError reports an update/delete against a row id with no
// visible version.
type RowNotFoundError struct {
	Table string
	RowID uint64
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("table %q has no row %d", e.Table, e.RowID)
}

// IndexExistsError reports CREATE INDEX against a name already in use.
type IndexExistsError struct {
	Table string
	Index string
}

func (e *IndexExistsError) Error() string {
	return fmt.Sprintf("index %q already exists on table %q", e.Index, e.Table)
}

// UnknownColumnError reports an index or query referencing a column the
// schema doesn't have (or an ambiguous unqualified name).
type UnknownColumnError struct{ Column string }

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// IndexNotFoundError reports a reference to an index that does not exist.
type IndexNotFoundError struct {
	Table string
	Index string
}

func (e *IndexNotFoundError) Error() string {
	return fmt.Sprintf("index %q does not exist on table %q", e.Index, e.Table)
}

// WriteConflictError reports an update/delete targeting a row version that
// a concurrent, not-yet-visible transaction has already superseded.
type WriteConflictError struct {
	Table string
	RowID uint64
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("concurrent update conflict on %s row %d", e.Table, e.RowID)
}

// UniqueViolationError reports an insert/update that would duplicate a
// unique index key.
type UniqueViolationError struct {
	Index string
	Table string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("duplicate key violates unique index %q on table %q", e.Index, e.Table)
}

// SerializationError reports a Serializable transaction that lost a
// first-committer-wins race on a row it wrote.
type SerializationError struct {
	Table string
	RowID uint64
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("could not serialize access due to concurrent update of %s row %d", e.Table, e.RowID)
}
