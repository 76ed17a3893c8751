// Package executor walks a planner.Plan tree and produces rows or a row
// count against a storage.Store, using internal/eval for every expression
// it needs to evaluate (predicates, projections, assignments, aggregates).
package executor

import (
	"context"
	"fmt"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/logging"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/storage"
	"github.com/kasuganosora/memdb/internal/value"
)

// QueryResult is what a SELECT (or EXPLAIN) produces.
type QueryResult struct {
	Schema value.Schema
	Rows   []value.Row
}

// ExecResult is what a DDL/DML statement produces.
type ExecResult struct {
	RowsAffected int64
	LastInsertID uint64
	CatalogAfter *catalog.Catalog // non-nil when a DDL statement changed the catalog
	TxKind       sqlparser.StmtKind
}

// Executor runs logical plans against one storage.Store, resolving table
// definitions through a Catalog snapshot and expressions through an
// Evaluator. A fresh Catalog snapshot is threaded through DDL execution via
// ExecResult.CatalogAfter since the Catalog itself is immutable.
type Executor struct {
	Store    *storage.Store
	Catalog  *catalog.Catalog
	Eval     *eval.Evaluator
	Log      *logging.Logger
}

// New builds an Executor. log may be nil, in which case a no-op logger is
// used (tests and embedders that don't care about executor tracing).
func New(store *storage.Store, cat *catalog.Catalog, log *logging.Logger) *Executor {
	if log == nil {
		log = logging.NewNop()
	}
	ev := eval.New()
	return &Executor{Store: store, Catalog: cat, Eval: ev, Log: log.Named("executor")}
}

// row is this package's row representation while walking a plan: RowID is
// set only for rows tracing back to exactly one base-table version (scans
// and filters over a scan), which is all Update/Delete ever need.
type row struct {
	RowID uint64
	Vals  value.Row
}

// rowSet is one plan node's output: a schema plus the rows produced under
// it, evaluated against xid's snapshot.
type rowSet struct {
	Schema value.Schema
	Rows   []row
}

// execCtx carries per-execution state through the recursive exec tree-walk:
// the transaction whose snapshot scans read against, and the working set of
// rows each in-scope recursive CTE produced on the previous fixpoint
// iteration (empty outside of execRecursiveCTE).
type execCtx struct {
	xid mvcc.XID
	cte map[string]*rowSet
}

// ExecuteQuery runs a SELECT/EXPLAIN plan and returns its rows.
func (e *Executor) ExecuteQuery(ctx context.Context, p *planner.Plan, xid mvcc.XID) (*QueryResult, error) {
	if p.Kind == planner.KindExplain {
		return e.executeExplain(p)
	}
	rs, err := e.exec(ctx, p, execCtx{xid: xid, cte: map[string]*rowSet{}})
	if err != nil {
		return nil, err
	}
	rows := make([]value.Row, len(rs.Rows))
	for i, r := range rs.Rows {
		rows[i] = r.Vals
	}
	return &QueryResult{Schema: rs.Schema, Rows: rows}, nil
}

// ExecuteStatement runs an INSERT/UPDATE/DELETE/DDL/tx-control plan.
func (e *Executor) ExecuteStatement(ctx context.Context, p *planner.Plan, xid mvcc.XID) (*ExecResult, error) {
	switch p.Kind {
	case planner.KindInsert:
		return e.executeInsert(xid, p)
	case planner.KindUpdate:
		return e.executeUpdate(ctx, xid, p)
	case planner.KindDelete:
		return e.executeDelete(ctx, xid, p)
	case planner.KindDDL:
		return e.executeDDL(p)
	case planner.KindTxControl:
		return &ExecResult{TxKind: p.TxKind}, nil
	default:
		return nil, fmt.Errorf("executor: %s is not a statement plan", p.Kind)
	}
}

// exec recursively evaluates a query-shaped plan node (scan/filter/project/
// join/aggregate/sort/limit/CTE) into a rowSet.
func (e *Executor) exec(ctx context.Context, p *planner.Plan, ec execCtx) (*rowSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch p.Kind {
	case planner.KindTableScan:
		return e.execTableScan(ec.xid, p)
	case planner.KindIndexScan:
		return e.execIndexScan(ec.xid, p)
	case planner.KindFilter:
		return e.execFilter(ctx, ec, p)
	case planner.KindJoin:
		return e.execJoin(ctx, ec, p)
	case planner.KindAggregate:
		return e.execAggregate(ctx, ec, p)
	case planner.KindProject:
		return e.execProject(ctx, ec, p)
	case planner.KindSort:
		return e.execSort(ctx, ec, p)
	case planner.KindLimit:
		return e.execLimit(ctx, ec, p)
	case planner.KindRecursiveCTE:
		return e.execRecursiveCTE(ctx, ec, p)
	case planner.KindCTEScan:
		if rs, ok := ec.cte[p.CTERef]; ok {
			return rs, nil
		}
		if len(p.Children) == 0 {
			return nil, fmt.Errorf("executor: recursive reference to %q used outside its recursive member", p.CTERef)
		}
		return e.exec(ctx, p.Children[0], ec)
	default:
		return nil, fmt.Errorf("executor: %s is not a query plan", p.Kind)
	}
}
