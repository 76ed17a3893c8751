package executor

import (
	"context"
	"fmt"

	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// groupColumnName and aggColumnName give the Aggregate node's synthetic
// output columns stable, regenerable names so Project (which sees the same
// GroupBy/Aggregates expression pointers via the shared sqlparser.SelectStmt)
// can rewrite references to them without any side-channel between the two
// plan nodes.
func groupColumnName(expr *sqlparser.Expr, i int) string {
	if expr != nil && expr.Kind == sqlparser.ExprColumn {
		return unqualified(expr.Column)
	}
	return fmt.Sprintf("__group%d", i)
}

func aggColumnName(i int) string { return fmt.Sprintf("__agg%d", i) }

func unqualified(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}

func (e *Executor) execAggregate(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	child, err := e.exec(ctx, p.Children[0], ec)
	if err != nil {
		return nil, err
	}

	type group struct {
		keyVals value.Row
		rows    []row
	}
	groups := map[string]*group{}
	var order []string

	for _, r := range child.Rows {
		b := eval.RowBinding{Schema: child.Schema, Row: r.Vals}
		key := make(value.Row, len(p.GroupBy))
		keyStr := ""
		for i, ge := range p.GroupBy {
			v, err := e.Eval.Eval(ge, b)
			if err != nil {
				return nil, err
			}
			key[i] = v
			keyStr += v.String() + "\x1f"
		}
		g, ok := groups[keyStr]
		if !ok {
			g = &group{keyVals: key}
			groups[keyStr] = g
			order = append(order, keyStr)
		}
		g.rows = append(g.rows, r)
	}

	if len(groups) == 0 && len(p.GroupBy) == 0 {
		// Scalar aggregate (no GROUP BY) over an empty input still produces
		// one row, e.g. SELECT COUNT(*) FROM empty_table.
		groups[""] = &group{}
		order = []string{""}
	}

	cols := make([]value.Column, 0, len(p.GroupBy)+len(p.Aggregates))
	for i, ge := range p.GroupBy {
		dt := value.Unknown()
		if ge.Kind == sqlparser.ExprColumn {
			if idx, ok := child.Schema.FindColumnIndex(ge.Column); ok {
				dt = child.Schema.Columns[idx].Type
			}
		}
		cols = append(cols, value.NewColumn(groupColumnName(ge, i), dt))
	}
	for i := range p.Aggregates {
		cols = append(cols, value.NewColumn(aggColumnName(i), value.Unknown()))
	}
	schema := value.NewSchema(cols)

	var out []row
	for _, k := range order {
		g := groups[k]
		vals := make(value.Row, 0, len(cols))
		vals = append(vals, g.keyVals...)
		for _, ag := range p.Aggregates {
			v, err := e.evalAggregate(ag, child.Schema, g.rows)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}

		if p.Having != nil {
			rewritten := rewriteAggregateRefs(p.Having, p)
			ok, err := e.Eval.Matches(rewritten, eval.RowBinding{Schema: schema, Row: vals})
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, row{Vals: vals})
	}

	return &rowSet{Schema: schema, Rows: out}, nil
}

func (e *Executor) evalAggregate(ag *sqlparser.Expr, schema value.Schema, rows []row) (value.Value, error) {
	fn := upperName(ag.Func)

	values := func() ([]value.Value, error) {
		var arg *sqlparser.Expr
		if len(ag.Args) > 0 {
			arg = ag.Args[0]
		}
		out := make([]value.Value, 0, len(rows))
		seen := map[string]bool{}
		for _, r := range rows {
			var v value.Value
			if arg == nil { // COUNT(*)
				v = value.NewInteger(1)
			} else {
				var err error
				v, err = e.Eval.Eval(arg, eval.RowBinding{Schema: schema, Row: r.Vals})
				if err != nil {
					return nil, err
				}
			}
			if ag.Distinct {
				k := v.String()
				if seen[k] {
					continue
				}
				seen[k] = true
			}
			out = append(out, v)
		}
		return out, nil
	}

	vals, err := values()
	if err != nil {
		return value.Value{}, err
	}

	switch fn {
	case "COUNT":
		n := int64(0)
		for _, v := range vals {
			if len(ag.Args) == 0 || !v.IsNull() {
				n++
			}
		}
		return value.NewInteger(n), nil
	case "SUM":
		sum, isFloat := 0.0, false
		any := false
		for _, v := range vals {
			if v.IsNull() {
				continue
			}
			any = true
			if f, ok := v.AsFloat64(); ok {
				sum += f
				if v.Kind() != value.KindInteger {
					isFloat = true
				}
			}
		}
		if !any {
			return value.Null(), nil
		}
		if isFloat {
			return value.NewFloat(sum), nil
		}
		return value.NewInteger(int64(sum)), nil
	case "AVG":
		sum, n := 0.0, 0
		for _, v := range vals {
			if v.IsNull() {
				continue
			}
			if f, ok := v.AsFloat64(); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return value.Null(), nil
		}
		return value.NewFloat(sum / float64(n)), nil
	case "MIN", "MAX":
		var best value.Value
		has := false
		for _, v := range vals {
			if v.IsNull() {
				continue
			}
			if !has {
				best, has = v, true
				continue
			}
			c, err := v.Compare(best)
			if err != nil {
				continue
			}
			if (fn == "MIN" && c < 0) || (fn == "MAX" && c > 0) {
				best = v
			}
		}
		if !has {
			return value.Null(), nil
		}
		return best, nil
	default:
		return value.Value{}, fmt.Errorf("executor: unsupported aggregate function %q", ag.Func)
	}
}

func upperName(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// rewriteAggregateRefs replaces each ExprAggregate node in expr that is
// pointer-identical to one of agg.Aggregates with a reference to that
// aggregate's synthetic output column, so the expression can be evaluated
// against the Aggregate node's output row instead of its input rows. This
// keeps Project (and HAVING) from needing any special-cased aggregate
// evaluation path of their own.
func rewriteAggregateRefs(expr *sqlparser.Expr, agg *planner.Plan) *sqlparser.Expr {
	if expr == nil {
		return nil
	}
	if expr.Kind == sqlparser.ExprAggregate {
		for i, a := range agg.Aggregates {
			if a == expr {
				return &sqlparser.Expr{Kind: sqlparser.ExprColumn, Column: aggColumnName(i)}
			}
		}
		return expr
	}
	out := *expr
	out.Left = rewriteAggregateRefs(expr.Left, agg)
	out.Right = rewriteAggregateRefs(expr.Right, agg)
	out.BetweenLow = rewriteAggregateRefs(expr.BetweenLow, agg)
	out.BetweenHigh = rewriteAggregateRefs(expr.BetweenHigh, agg)
	if expr.Args != nil {
		out.Args = make([]*sqlparser.Expr, len(expr.Args))
		for i, a := range expr.Args {
			out.Args[i] = rewriteAggregateRefs(a, agg)
		}
	}
	if expr.InList != nil {
		out.InList = make([]*sqlparser.Expr, len(expr.InList))
		for i, a := range expr.InList {
			out.InList[i] = rewriteAggregateRefs(a, agg)
		}
	}
	return &out
}
