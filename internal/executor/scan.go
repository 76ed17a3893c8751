package executor

import (
	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/value"
)

func (e *Executor) execTableScan(xid mvcc.XID, p *planner.Plan) (*rowSet, error) {
	if p.Table == "" {
		// No FROM clause: a single synthetic row for constant-only SELECTs.
		return &rowSet{Schema: value.Schema{}, Rows: []row{{Vals: value.Row{}}}}, nil
	}
	visible, err := e.Store.Scan(xid, p.Table)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(visible))
	for i, v := range visible {
		rows[i] = row{RowID: v.RowID, Vals: v.Data}
	}
	return &rowSet{Schema: p.Schema, Rows: rows}, nil
}

func (e *Executor) execIndexScan(xid mvcc.XID, p *planner.Plan) (*rowSet, error) {
	t, err := e.Store.Table(p.Table)
	if err != nil {
		return nil, err
	}
	ix, ok := t.IndexOn(p.IndexColumn)
	if !ok {
		// Index disappeared (e.g. concurrent DROP INDEX) between planning
		// and execution; fall back to a full scan rather than failing.
		return e.execTableScan(xid, &planner.Plan{Kind: planner.KindTableScan, Table: p.Table, Schema: p.Schema})
	}

	key, err := e.Eval.Eval(p.IndexFilter, eval.EmptyBinding{})
	if err != nil {
		return nil, err
	}
	rowIDs := ix.Lookup([]value.Value{key})

	aborted := e.Store.TxManager().AbortedSet()
	tx, err := e.Store.TxManager().Get(xid)
	if err != nil {
		return nil, err
	}
	snap := tx.Snapshot()

	rows := make([]row, 0, len(rowIDs))
	for _, id := range rowIDs {
		if data, ok := t.Get(id, snap, aborted); ok {
			rows = append(rows, row{RowID: id, Vals: data})
		}
	}
	return &rowSet{Schema: p.Schema, Rows: rows}, nil
}
