package planner

import "fmt"

// UnsupportedStatementError reports a statement kind the planner can't
// build a plan for yet.
type UnsupportedStatementError struct{ What string }

func (e *UnsupportedStatementError) Error() string {
	return fmt.Sprintf("planner: unsupported statement %s", e.What)
}

// UnknownTableError reports a FROM/INSERT/UPDATE/DELETE target not in the
// catalog and not a registered CTE name in scope.
type UnknownTableError struct{ Name string }

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("planner: unknown table %q", e.Name)
}
