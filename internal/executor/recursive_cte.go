package executor

import (
	"context"

	"github.com/kasuganosora/memdb/internal/planner"
)

// execRecursiveCTE evaluates a WITH RECURSIVE member to fixpoint: the anchor
// runs once to seed the accumulated result, then the recursive member runs
// again and again with its self-reference bound to the previous round's new
// rows, until a round contributes nothing new. Rows are deduped by their
// string encoding across the whole run (UNION semantics) since the parser
// does not currently distinguish UNION from UNION ALL for a recursive CTE.
func (e *Executor) execRecursiveCTE(ctx context.Context, ec execCtx, p *planner.Plan) (*rowSet, error) {
	anchor, err := e.exec(ctx, p.Anchor, ec)
	if err != nil {
		return nil, err
	}

	schema := anchor.Schema
	seen := map[string]bool{}
	var all []row
	working := make([]row, 0, len(anchor.Rows))
	for _, r := range anchor.Rows {
		k := rowKey(r.Vals)
		if seen[k] {
			continue
		}
		seen[k] = true
		all = append(all, r)
		working = append(working, r)
	}

	for len(working) > 0 {
		innerCTE := make(map[string]*rowSet, len(ec.cte)+1)
		for k, v := range ec.cte {
			innerCTE[k] = v
		}
		innerCTE[p.CTEName] = &rowSet{Schema: schema, Rows: working}

		round, err := e.exec(ctx, p.RecursiveMember, execCtx{xid: ec.xid, cte: innerCTE})
		if err != nil {
			return nil, err
		}

		var next []row
		for _, r := range round.Rows {
			k := rowKey(r.Vals)
			if seen[k] {
				continue
			}
			seen[k] = true
			all = append(all, r)
			next = append(next, r)
		}
		working = next
	}

	return &rowSet{Schema: schema, Rows: all}, nil
}
