package persist

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports PersistSession.Load against a persist_id with no
// matching row.
var ErrNotFound = errors.New("persist: entity not found")

// ErrNotBound reports Entity.Save/Delete called on an entity that was
// never bound to a Session (a Load or a PersistSession.NewEntity result
// always is; one built only for validation never is).
var ErrNotBound = errors.New("persist: entity is not bound to a session")

// ConflictKind classifies a failed save the way spec.md 4.11 classifies a
// failed managed-collection operation, so internal/managedvec can reuse
// the same taxonomy and the same classification mechanism.
type ConflictKind int

const (
	ConflictUnknown ConflictKind = iota
	ConflictOptimisticLock
	ConflictWriteWrite
	ConflictUniqueConstraint
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictOptimisticLock:
		return "optimistic_lock"
	case ConflictWriteWrite:
		return "write_write"
	case ConflictUniqueConstraint:
		return "unique_constraint"
	default:
		return "unknown"
	}
}

// ConflictError reports a Save/Delete that lost a concurrency race.
type ConflictError struct {
	Kind ConflictKind
	Err  error
}

func (e *ConflictError) Error() string { return e.Err.Error() }
func (e *ConflictError) Unwrap() error { return e.Err }

func optimisticLockError(persistID string, expectedVersion int64) error {
	return &ConflictError{
		Kind: ConflictOptimisticLock,
		Err:  fmt.Errorf("persist: optimistic lock conflict: persist_id=%s expected_version=%d", persistID, expectedVersion),
	}
}

// ClassifyConflict maps err onto a ConflictKind. A *ConflictError's own
// Kind is trusted directly; anything else is classified the way spec.md
// 4.11 names — by substring inspection of the error's message — so a
// conflict surfaced by the storage layer directly (never wrapped by this
// package) still classifies correctly.
func ClassifyConflict(err error) ConflictKind {
	if err == nil {
		return ConflictUnknown
	}
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "optimistic lock conflict"):
		return ConflictOptimisticLock
	case strings.Contains(msg, "write-write conflict detected"),
		strings.Contains(msg, "concurrent update conflict"),
		strings.Contains(msg, "could not serialize access"):
		return ConflictWriteWrite
	case strings.Contains(msg, "unique constraint violation"),
		strings.Contains(msg, "duplicate key violates unique index"):
		return ConflictUniqueConstraint
	default:
		return ConflictUnknown
	}
}
