package executor

import (
	"context"

	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/value"
)

func (e *Executor) execProject(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	child := p.Children[0]
	rs, err := e.exec(ctx, child, ec)
	if err != nil {
		return nil, err
	}

	cols := p.Columns
	if len(cols) == 0 {
		return rs, nil
	}

	seen := map[string]bool{}
	var out []row
	for _, r := range rs.Rows {
		b := eval.RowBinding{Schema: rs.Schema, Row: r.Vals}
		vals := make(value.Row, 0, len(cols))
		for _, c := range cols {
			if c.Star {
				for i, sc := range rs.Schema.Columns {
					if c.StarTable == "" || hasPrefix(sc.Name, c.StarTable+".") {
						vals = append(vals, r.Vals[i])
					}
				}
				continue
			}
			expr := c.Expr
			if child.Kind == planner.KindAggregate {
				expr = rewriteAggregateRefs(expr, child)
			}
			v, err := e.Eval.Eval(expr, b)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		if p.Distinct {
			key := rowKey(vals)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, row{RowID: r.RowID, Vals: vals})
	}

	return &rowSet{Schema: p.Schema, Rows: out}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func rowKey(vals value.Row) string {
	key := ""
	for _, v := range vals {
		key += v.String() + "\x1f"
	}
	return key
}
