package executor

import (
	"context"

	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// execJoin is a nested-loop join: simple and quadratic, the right access
// path for an in-process engine whose tables are expected to be small to
// moderate, matching the scope this module targets (no cost-based join
// reordering or hash/merge-join strategy selection).
func (e *Executor) execJoin(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	left, err := e.exec(ctx, p.Children[0], ec)
	if err != nil {
		return nil, err
	}
	right, err := e.exec(ctx, p.Children[1], ec)
	if err != nil {
		return nil, err
	}

	schema := value.Merge(left.Schema, right.Schema)
	var out []row

	nullRight := make(value.Row, len(right.Schema.Columns))
	for i := range nullRight {
		nullRight[i] = value.Null()
	}
	nullLeft := make(value.Row, len(left.Schema.Columns))
	for i := range nullLeft {
		nullLeft[i] = value.Null()
	}

	switch p.JoinType {
	case planner.JoinCross:
		for _, l := range left.Rows {
			for _, r := range right.Rows {
				out = append(out, combine(l, r))
			}
		}

	case planner.JoinLeft:
		for _, l := range left.Rows {
			matched := false
			for _, r := range right.Rows {
				ok, err := e.matchesJoin(p.JoinOn, schema, l, r)
				if err != nil {
					return nil, err
				}
				if ok {
					matched = true
					out = append(out, combine(l, r))
				}
			}
			if !matched {
				out = append(out, combine(l, row{Vals: nullRight}))
			}
		}

	case planner.JoinRight:
		for _, r := range right.Rows {
			matched := false
			for _, l := range left.Rows {
				ok, err := e.matchesJoin(p.JoinOn, schema, l, r)
				if err != nil {
					return nil, err
				}
				if ok {
					matched = true
					out = append(out, combine(l, r))
				}
			}
			if !matched {
				out = append(out, combine(row{Vals: nullLeft}, r))
			}
		}

	default: // JoinInner
		for _, l := range left.Rows {
			for _, r := range right.Rows {
				ok, err := e.matchesJoin(p.JoinOn, schema, l, r)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, combine(l, r))
				}
			}
		}
	}

	return &rowSet{Schema: schema, Rows: out}, nil
}

func combine(l, r row) row {
	vals := make(value.Row, 0, len(l.Vals)+len(r.Vals))
	vals = append(vals, l.Vals...)
	vals = append(vals, r.Vals...)
	return row{Vals: vals}
}

func (e *Executor) matchesJoin(on *sqlparser.Expr, schema value.Schema, l, r row) (bool, error) {
	if on == nil {
		return true, nil
	}
	return e.Eval.Matches(on, eval.RowBinding{Schema: schema, Row: combine(l, r).Vals})
}
