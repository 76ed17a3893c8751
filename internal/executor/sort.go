package executor

import (
	"context"
	"sort"

	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/planner"
)

func (e *Executor) execSort(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	child, err := e.exec(ctx, p.Children[0], ec)
	if err != nil {
		return nil, err
	}

	var sortErr error
	sort.SliceStable(child.Rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		bi := eval.RowBinding{Schema: child.Schema, Row: child.Rows[i].Vals}
		bj := eval.RowBinding{Schema: child.Schema, Row: child.Rows[j].Vals}
		for _, item := range p.OrderBy {
			vi, err := e.Eval.Eval(item.Expr, bi)
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := e.Eval.Eval(item.Expr, bj)
			if err != nil {
				sortErr = err
				return false
			}
			if vi.IsNull() || vj.IsNull() {
				if vi.IsNull() && !vj.IsNull() {
					return false // NULLs sort last regardless of direction
				}
				if !vi.IsNull() && vj.IsNull() {
					return true
				}
				continue
			}
			c, err := vi.Compare(vj)
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if item.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return child, nil
}
