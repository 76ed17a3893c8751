package managedvec

import "github.com/kasuganosora/memdb/internal/persist"

// ManagedConflictKind classifies a failed managed-collection mutation,
// reusing internal/persist's ConflictKind taxonomy directly — a managed
// collection's conflicts are, after all, the same Save conflicts Entity
// itself can raise.
type ManagedConflictKind = persist.ConflictKind

const (
	ManagedConflictUnknown          = persist.ConflictUnknown
	ManagedConflictOptimisticLock   = persist.ConflictOptimisticLock
	ManagedConflictWriteWrite       = persist.ConflictWriteWrite
	ManagedConflictUniqueConstraint = persist.ConflictUniqueConstraint
)

// ClassifyConflict maps err (as returned by Create/Update/Delete/Patch/
// ApplyCommand) onto a ManagedConflictKind.
func ClassifyConflict(err error) ManagedConflictKind {
	return persist.ClassifyConflict(err)
}
