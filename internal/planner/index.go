package planner

import "github.com/kasuganosora/memdb/internal/sqlparser"

// splitConjuncts flattens a tree of AND-connected predicates into its leaf
// conjuncts, the shape index selection and predicate pushdown both want.
func splitConjuncts(expr *sqlparser.Expr) []*sqlparser.Expr {
	if expr == nil {
		return nil
	}
	if expr.Kind == sqlparser.ExprBinary && isAndOp(expr.Op) {
		return append(splitConjuncts(expr.Left), splitConjuncts(expr.Right)...)
	}
	return []*sqlparser.Expr{expr}
}

func isAndOp(op string) bool {
	switch op {
	case "and", "AND", "logic and", "&&":
		return true
	default:
		return false
	}
}

// findIndexEquality scans expr's top-level conjuncts for "col = literal"
// where col names an indexed column, returning that column's name and the
// literal expression so the scan can be rewritten into an index lookup. This is a single-equality
// heuristic, not a general access-path search.
func findIndexEquality(expr *sqlparser.Expr, isIndexed func(column string) bool) (string, *sqlparser.Expr) {
	for _, c := range splitConjuncts(expr) {
		if c.Kind != sqlparser.ExprBinary || (c.Op != "eq" && c.Op != "=") {
			continue
		}
		if col, lit, ok := columnLiteralPair(c); ok && isIndexed(col) {
			return col, lit
		}
	}
	return "", nil
}

func columnLiteralPair(eq *sqlparser.Expr) (column string, literal *sqlparser.Expr, ok bool) {
	if eq.Left.Kind == sqlparser.ExprColumn && eq.Right.Kind == sqlparser.ExprLiteral {
		return eq.Left.Column, eq.Right, true
	}
	if eq.Right.Kind == sqlparser.ExprColumn && eq.Left.Kind == sqlparser.ExprLiteral {
		return eq.Right.Column, eq.Left, true
	}
	return "", nil, false
}
