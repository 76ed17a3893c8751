package engine

import (
	"errors"
	"fmt"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/storage"
)

// ErrorKind classifies why a statement failed, independent of which layer
// (parser/planner/executor/storage/io) raised the underlying error.
type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	ErrParse
	ErrPlan
	ErrExecution
	ErrConstraint
	ErrConflict
	ErrTransaction
	ErrIO
	ErrUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case ErrParse:
		return "parse"
	case ErrPlan:
		return "plan"
	case ErrExecution:
		return "execution"
	case ErrConstraint:
		return "constraint"
	case ErrConflict:
		return "conflict"
	case ErrTransaction:
		return "transaction"
	case ErrIO:
		return "io"
	case ErrUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// EngineError wraps a statement failure with the ErrorKind callers need to
// decide whether to retry (ErrConflict), reject the input (ErrParse,
// ErrConstraint), or treat as a bug (ErrUnknown).
type EngineError struct {
	Kind ErrorKind
	Err  error
}

func (e *EngineError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *EngineError) Unwrap() error { return e.Err }

// classify wraps err in an EngineError, inspecting it against every typed
// error the parser/planner/executor/storage/catalog layers define. Errors
// this package raises directly (WAL/snapshot I/O, session-state misuse) are
// wrapped with the right Kind at their call site instead of passing through
// here.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var parseErr *sqlparser.ParseError
	var sqlUnsupported *sqlparser.UnsupportedError
	var planUnsupported *planner.UnsupportedStatementError
	var planUnknownTable *planner.UnknownTableError
	var storeTableNotFound *storage.TableNotFoundError
	var storeTableExists *storage.TableExistsError
	var storeRowNotFound *storage.RowNotFoundError
	var storeIndexExists *storage.IndexExistsError
	var storeIndexNotFound *storage.IndexNotFoundError
	var storeUnknownColumn *storage.UnknownColumnError
	var storeUniqueViolation *storage.UniqueViolationError
	var storeWriteConflict *storage.WriteConflictError
	var storeSerialization *storage.SerializationError
	var catTableNotFound *catalog.TableNotFoundError
	var catTableExists *catalog.TableExistsError
	var notActive *mvcc.NotActiveError

	switch {
	case errors.As(err, &parseErr):
		return &EngineError{Kind: ErrParse, Err: err}
	case errors.As(err, &sqlUnsupported), errors.As(err, &planUnsupported):
		return &EngineError{Kind: ErrUnsupported, Err: err}
	case errors.As(err, &planUnknownTable), errors.As(err, &storeTableNotFound), errors.As(err, &catTableNotFound):
		return &EngineError{Kind: ErrPlan, Err: err}
	case errors.As(err, &storeUniqueViolation):
		return &EngineError{Kind: ErrConstraint, Err: err}
	case errors.As(err, &storeWriteConflict), errors.As(err, &storeSerialization):
		return &EngineError{Kind: ErrConflict, Err: err}
	case errors.As(err, &notActive):
		return &EngineError{Kind: ErrTransaction, Err: err}
	case errors.As(err, &storeTableExists), errors.As(err, &catTableExists),
		errors.As(err, &storeRowNotFound), errors.As(err, &storeIndexExists),
		errors.As(err, &storeIndexNotFound), errors.As(err, &storeUnknownColumn):
		return &EngineError{Kind: ErrExecution, Err: err}
	default:
		return &EngineError{Kind: ErrUnknown, Err: err}
	}
}

// IsKind reports whether err is an EngineError of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ee *EngineError
	if !errors.As(err, &ee) {
		return false
	}
	return ee.Kind == k
}
