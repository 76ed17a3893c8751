package executor

import (
	"context"

	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/planner"
)

func (e *Executor) execFilter(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	child, err := e.exec(ctx, p.Children[0], ec)
	if err != nil {
		return nil, err
	}
	if p.Predicate == nil {
		return child, nil
	}
	out := child.Rows[:0]
	for _, r := range child.Rows {
		ok, err := e.Eval.Matches(p.Predicate, eval.RowBinding{Schema: child.Schema, Row: r.Vals})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return &rowSet{Schema: child.Schema, Rows: out}, nil
}
