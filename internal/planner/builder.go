package planner

import (
	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// scope carries the CTEs visible while building one SELECT: a name maps to
// the already-built plan producing its rows (or, while building a recursive
// member, to a CTEScan placeholder standing in for the self-reference).
type scope struct {
	parent *scope
	ctes   map[string]*Plan
}

func (s *scope) lookup(name string) (*Plan, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if p, ok := cur.ctes[name]; ok {
			return p, true
		}
	}
	return nil, false
}

func (s *scope) child() *scope {
	return &scope{parent: s, ctes: map[string]*Plan{}}
}

// Build converts a parsed statement into a logical plan rooted against cat.
func Build(stmt *sqlparser.Statement, cat *catalog.Catalog) (*Plan, error) {
	switch stmt.Kind {
	case sqlparser.StmtSelect:
		return buildSelect(stmt.Select, cat, &scope{ctes: map[string]*Plan{}})
	case sqlparser.StmtInsert:
		return buildInsert(stmt.Insert, cat)
	case sqlparser.StmtUpdate:
		return buildUpdate(stmt.Update, cat)
	case sqlparser.StmtDelete:
		return buildDelete(stmt.Delete, cat)
	case sqlparser.StmtCreateTable, sqlparser.StmtDropTable, sqlparser.StmtCreateIndex, sqlparser.StmtDropIndex:
		return &Plan{Kind: KindDDL, Statement: stmt}, nil
	case sqlparser.StmtBegin, sqlparser.StmtCommit, sqlparser.StmtRollback:
		return &Plan{Kind: KindTxControl, TxKind: stmt.Kind}, nil
	case sqlparser.StmtExplain:
		inner, err := Build(stmt.Explain.Inner, cat)
		if err != nil {
			return nil, err
		}
		return &Plan{Kind: KindExplain, Inner: inner, Analyze: stmt.Explain.Analyze}, nil
	default:
		return nil, &UnsupportedStatementError{What: stmt.Kind.String()}
	}
}

func buildSelect(sel *sqlparser.SelectStmt, cat *catalog.Catalog, sc *scope) (*Plan, error) {
	inner := sc.child()
	if err := registerCTEs(sel.CTEs, cat, inner); err != nil {
		return nil, err
	}

	source, err := buildSource(sel.From, cat, inner)
	if err != nil {
		return nil, err
	}

	plan := source
	if sel.Where != nil {
		plan = applyFilterWithIndex(plan, sel.Where, cat)
	}

	if needsAggregate(sel) {
		plan = &Plan{
			Kind:       KindAggregate,
			Children:   []*Plan{plan},
			GroupBy:    sel.GroupBy,
			Aggregates: collectAggregates(sel.Columns),
			Having:     sel.Having,
			Schema:     plan.Schema,
		}
	}

	plan = &Plan{
		Kind:     KindProject,
		Children: []*Plan{plan},
		Columns:  sel.Columns,
		Distinct: sel.Distinct,
		Schema:   projectSchema(sel.Columns, plan.Schema),
	}

	if len(sel.OrderBy) > 0 {
		plan = &Plan{Kind: KindSort, Children: []*Plan{plan}, OrderBy: sel.OrderBy, Schema: plan.Schema}
	}

	if sel.Limit != nil || sel.Offset != nil {
		plan = &Plan{Kind: KindLimit, Children: []*Plan{plan}, Limit: sel.Limit, Offset: sel.Offset, Schema: plan.Schema}
	}

	return plan, nil
}

// registerCTEs builds each WITH binding in order (later ones may reference
// earlier ones, matching standard WITH scoping) and installs it into sc.
func registerCTEs(ctes []sqlparser.CTE, cat *catalog.Catalog, sc *scope) error {
	for _, cte := range ctes {
		if !cte.Recursive {
			p, err := buildSelect(cte.Anchor, cat, sc)
			if err != nil {
				return err
			}
			p.Schema = renameColumns(p.Schema, cte.Columns)
			sc.ctes[cte.Name] = &Plan{Kind: KindCTEScan, CTERef: cte.Name, Children: []*Plan{p}, Schema: p.Schema}
			continue
		}

		anchor, err := buildSelect(cte.Anchor, cat, sc)
		if err != nil {
			return err
		}

		// The recursive member refers back to the CTE by name; bind that
		// name to a CTEScan placeholder before building it so the
		// self-reference resolves instead of erroring as unknown.
		memberScope := sc.child()
		memberScope.ctes[cte.Name] = &Plan{Kind: KindCTEScan, CTERef: cte.Name}
		member, err := buildSelect(cte.RecursiveMember, cat, memberScope)
		if err != nil {
			return err
		}

		anchor.Schema = renameColumns(anchor.Schema, cte.Columns)
		sc.ctes[cte.Name] = &Plan{
			Kind:            KindRecursiveCTE,
			CTEName:         cte.Name,
			Anchor:          anchor,
			RecursiveMember: member,
			Schema:          anchor.Schema,
		}
	}
	return nil
}

func buildSource(ref *sqlparser.TableRef, cat *catalog.Catalog, sc *scope) (*Plan, error) {
	if ref == nil {
		// No FROM clause: a single synthetic row, e.g. SELECT 1+1.
		return &Plan{Kind: KindTableScan, Table: ""}, nil
	}

	left, err := buildTableItem(ref.Table, ref.Alias, ref.Subquery, cat, sc)
	if err != nil {
		return nil, err
	}

	for _, j := range ref.Joins {
		right, err := buildTableItem(j.Table, j.Alias, nil, cat, sc)
		if err != nil {
			return nil, err
		}
		left = &Plan{
			Kind:     KindJoin,
			Children: []*Plan{left, right},
			JoinType: convertJoinType(j.Type),
			JoinOn:   j.On,
			Schema:   value.Merge(left.Schema, right.Schema),
		}
	}
	return left, nil
}

func buildTableItem(table, alias string, subquery *sqlparser.SelectStmt, cat *catalog.Catalog, sc *scope) (*Plan, error) {
	if subquery != nil {
		p, err := buildSelect(subquery, cat, sc)
		if err != nil {
			return nil, err
		}
		if alias != "" {
			p.Schema = p.Schema.QualifyColumns(alias)
		}
		return p, nil
	}

	if cteScan, ok := sc.lookup(table); ok {
		out := *cteScan
		out.Alias = alias
		if len(out.Children) == 1 {
			out.Schema = out.Children[0].Schema
		}
		if alias != "" {
			out.Schema = out.Schema.QualifyColumns(alias)
		}
		return &out, nil
	}

	ts, err := cat.GetTable(table)
	if err != nil {
		return nil, &UnknownTableError{Name: table}
	}
	schema := ts.Schema
	name := table
	if alias != "" {
		name = alias
		schema = schema.QualifyColumns(alias)
	}
	return &Plan{Kind: KindTableScan, Table: table, Alias: name, Schema: schema}, nil
}

func convertJoinType(j sqlparser.JoinType) JoinType {
	switch j {
	case sqlparser.JoinLeft:
		return JoinLeft
	case sqlparser.JoinRight:
		return JoinRight
	case sqlparser.JoinCross:
		return JoinCross
	default:
		return JoinInner
	}
}

// applyFilterWithIndex rewrites a bare TableScan into an IndexScan when the
// predicate contains an equality conjunct on an indexed column, and in
// every case wraps the (possibly rewritten) plan in a Filter node. Joins and subqueries are always filtered,
// never index-rewritten, since the equality heuristic only looks at a
// single base table's own columns.
func applyFilterWithIndex(plan *Plan, where *sqlparser.Expr, cat *catalog.Catalog) *Plan {
	if plan.Kind == KindTableScan && plan.Table != "" {
		if ts, err := cat.GetTable(plan.Table); err == nil {
			if col, lit := findIndexEquality(where, ts.IsIndexed); col != "" {
				plan.Kind = KindIndexScan
				plan.IndexColumn = col
				plan.IndexFilter = lit
			}
		}
	}
	return &Plan{Kind: KindFilter, Children: []*Plan{plan}, Predicate: where, Schema: plan.Schema}
}

// projectSchema derives a SELECT list's output schema from its input
// schema: star columns expand in place, aliased/column expressions keep
// their source type, and anything else (function calls, arithmetic,
// aggregates) is typed Unknown since inferring it needs the evaluator's
// function signatures, which this package doesn't depend on.
func projectSchema(cols []sqlparser.SelectColumn, input value.Schema) value.Schema {
	out := make([]value.Column, 0, len(cols))
	for _, c := range cols {
		if c.Star {
			for _, ic := range input.Columns {
				if c.StarTable == "" || hasPrefix(ic.Name, c.StarTable+".") {
					out = append(out, ic)
				}
			}
			continue
		}

		name := c.Alias
		dt := value.Unknown()
		if c.Expr != nil && c.Expr.Kind == sqlparser.ExprColumn {
			if name == "" {
				name = unqualified(c.Expr.Column)
			}
			if idx, ok := input.FindColumnIndex(c.Expr.Column); ok {
				dt = input.Columns[idx].Type
			}
		}
		if name == "" {
			name = "?column?"
		}
		out = append(out, value.NewColumn(name, dt))
	}
	return value.NewSchema(out)
}

// renameColumns applies a CTE's explicit column-name list, e.g.
// "WITH ladder(n) AS (...)", to its anchor's inferred schema.
func renameColumns(schema value.Schema, names []string) value.Schema {
	if len(names) == 0 || len(names) != len(schema.Columns) {
		return schema
	}
	cols := make([]value.Column, len(schema.Columns))
	for i, c := range schema.Columns {
		c.Name = names[i]
		cols[i] = c
	}
	return value.NewSchema(cols)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func unqualified(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func needsAggregate(sel *sqlparser.SelectStmt) bool {
	if len(sel.GroupBy) > 0 || sel.Having != nil {
		return true
	}
	for _, c := range sel.Columns {
		if c.Expr != nil && c.Expr.Kind == sqlparser.ExprAggregate {
			return true
		}
	}
	return false
}

func collectAggregates(cols []sqlparser.SelectColumn) []*sqlparser.Expr {
	var out []*sqlparser.Expr
	for _, c := range cols {
		if c.Expr != nil && c.Expr.Kind == sqlparser.ExprAggregate {
			out = append(out, c.Expr)
		}
	}
	return out
}

func buildInsert(ins *sqlparser.InsertStmt, cat *catalog.Catalog) (*Plan, error) {
	if !cat.HasTable(ins.Table) {
		return nil, &UnknownTableError{Name: ins.Table}
	}
	return &Plan{
		Kind:          KindInsert,
		Table:         ins.Table,
		InsertColumns: ins.Columns,
		InsertValues:  ins.Values,
	}, nil
}

func buildUpdate(upd *sqlparser.UpdateStmt, cat *catalog.Catalog) (*Plan, error) {
	ts, err := cat.GetTable(upd.Table)
	if err != nil {
		return nil, &UnknownTableError{Name: upd.Table}
	}
	scan := &Plan{Kind: KindTableScan, Table: upd.Table, Alias: upd.Table, Schema: ts.Schema}
	var source *Plan = scan
	if upd.Where != nil {
		source = applyFilterWithIndex(scan, upd.Where, cat)
	}
	return &Plan{
		Kind:        KindUpdate,
		Table:       upd.Table,
		Children:    []*Plan{source},
		Assignments: upd.Set,
		Limit:       upd.Limit,
	}, nil
}

func buildDelete(del *sqlparser.DeleteStmt, cat *catalog.Catalog) (*Plan, error) {
	ts, err := cat.GetTable(del.Table)
	if err != nil {
		return nil, &UnknownTableError{Name: del.Table}
	}
	scan := &Plan{Kind: KindTableScan, Table: del.Table, Alias: del.Table, Schema: ts.Schema}
	var source *Plan = scan
	if del.Where != nil {
		source = applyFilterWithIndex(scan, del.Where, cat)
	}
	return &Plan{
		Kind:     KindDelete,
		Table:    del.Table,
		Children: []*Plan{source},
		Limit:    del.Limit,
	}, nil
}
