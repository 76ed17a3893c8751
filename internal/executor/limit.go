package executor

import (
	"context"

	"github.com/kasuganosora/memdb/internal/planner"
)

func (e *Executor) execLimit(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	child, err := e.exec(ctx, p.Children[0], ec)
	if err != nil {
		return nil, err
	}

	rows := child.Rows
	if p.Offset != nil {
		off := int(*p.Offset)
		if off >= len(rows) {
			rows = nil
		} else {
			rows = rows[off:]
		}
	}
	if p.Limit != nil {
		n := int(*p.Limit)
		if n < len(rows) {
			rows = rows[:n]
		}
	}
	return &rowSet{Schema: child.Schema, Rows: rows}, nil
}
