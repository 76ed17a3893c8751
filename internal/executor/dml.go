package executor

import (
	"context"
	"fmt"

	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// executeInsert evaluates each VALUES tuple against an empty binding (no
// input row, matching standard INSERT semantics) and appends it to the
// target table, filling in column defaults for anything the statement left
// unspecified.
func (e *Executor) executeInsert(xid mvcc.XID, p *planner.Plan) (*ExecResult, error) {
	ts, err := e.Catalog.GetTable(p.Table)
	if err != nil {
		return nil, err
	}

	var lastID uint64
	for _, tuple := range p.InsertValues {
		row, err := e.buildInsertRow(ts, p.InsertColumns, tuple)
		if err != nil {
			return nil, err
		}
		id, err := e.Store.Insert(xid, p.Table, row)
		if err != nil {
			return nil, err
		}
		lastID = id
	}
	return &ExecResult{RowsAffected: int64(len(p.InsertValues)), LastInsertID: lastID}, nil
}

func (e *Executor) buildInsertRow(ts value.TableSchema, columns []string, tuple []*sqlparser.Expr) (value.Row, error) {
	row := make(value.Row, len(ts.Schema.Columns))
	set := make([]bool, len(row))

	if len(columns) == 0 {
		if len(tuple) != len(row) {
			return nil, fmt.Errorf("executor: insert into %q expects %d values, got %d", ts.Name, len(row), len(tuple))
		}
		for i, expr := range tuple {
			v, err := e.Eval.Eval(expr, eval.EmptyBinding{})
			if err != nil {
				return nil, err
			}
			row[i] = v
			set[i] = true
		}
	} else {
		if len(columns) != len(tuple) {
			return nil, fmt.Errorf("executor: insert into %q column/value count mismatch", ts.Name)
		}
		for i, name := range columns {
			idx, ok := ts.Schema.FindColumnIndex(name)
			if !ok {
				return nil, fmt.Errorf("executor: unknown column %q in insert into %q", name, ts.Name)
			}
			v, err := e.Eval.Eval(tuple[i], eval.EmptyBinding{})
			if err != nil {
				return nil, err
			}
			row[idx] = v
			set[idx] = true
		}
	}

	for i, col := range ts.Schema.Columns {
		if set[i] {
			continue
		}
		if col.Default != nil {
			row[i] = *col.Default
		} else {
			row[i] = value.Null()
		}
	}
	return row, nil
}

// executeUpdate evaluates each SET assignment against the row being
// replaced (so "SET balance = balance - 1" reads the pre-update value) and
// writes the result back through Store.Update, which itself re-validates
// MVCC visibility at write time.
func (e *Executor) executeUpdate(ctx context.Context, xid mvcc.XID, p *planner.Plan) (*ExecResult, error) {
	source, err := e.exec(ctx, p.Children[0], execCtx{xid: xid, cte: map[string]*rowSet{}})
	if err != nil {
		return nil, err
	}

	rows := source.Rows
	if p.Limit != nil && int64(len(rows)) > *p.Limit {
		rows = rows[:*p.Limit]
	}

	var n int64
	for _, r := range rows {
		b := eval.RowBinding{Schema: source.Schema, Row: r.Vals}
		newRow := r.Vals.Clone()
		for _, a := range p.Assignments {
			idx, ok := source.Schema.FindColumnIndex(a.Column)
			if !ok {
				return nil, fmt.Errorf("executor: unknown column %q in update of %q", a.Column, p.Table)
			}
			v, err := e.Eval.Eval(a.Value, b)
			if err != nil {
				return nil, err
			}
			newRow[idx] = v
		}
		if err := e.Store.Update(xid, p.Table, r.RowID, newRow); err != nil {
			return nil, err
		}
		n++
	}
	return &ExecResult{RowsAffected: n}, nil
}

// executeDelete deletes every row the plan's filtered scan matched.
func (e *Executor) executeDelete(ctx context.Context, xid mvcc.XID, p *planner.Plan) (*ExecResult, error) {
	source, err := e.exec(ctx, p.Children[0], execCtx{xid: xid, cte: map[string]*rowSet{}})
	if err != nil {
		return nil, err
	}

	rows := source.Rows
	if p.Limit != nil && int64(len(rows)) > *p.Limit {
		rows = rows[:*p.Limit]
	}

	var n int64
	for _, r := range rows {
		if err := e.Store.Delete(xid, p.Table, r.RowID); err != nil {
			return nil, err
		}
		n++
	}
	return &ExecResult{RowsAffected: n}, nil
}
