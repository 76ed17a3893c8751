package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/executor"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
)

// Session is one client's connection to an Engine: autocommit by default,
// switching to an explicit transaction between BEGIN and the matching
// COMMIT/ROLLBACK. A Session is not safe for concurrent use by multiple
// goroutines, matching the single in-flight statement per connection every
// caller of this package expects.
type Session struct {
	mu    sync.Mutex
	eng   *Engine
	xid   mvcc.XID
	inTx  bool
	level mvcc.IsolationLevel
}

// SetIsolationLevel changes the level the next BEGIN starts at. It has no
// effect on a transaction already in progress.
func (s *Session) SetIsolationLevel(level mvcc.IsolationLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// InTransaction reports whether a BEGIN is currently open.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx
}

// Exec runs an INSERT/UPDATE/DELETE/DDL/BEGIN/COMMIT/ROLLBACK statement.
// Use Query for SELECT/EXPLAIN.
func (s *Session) Exec(ctx context.Context, sqlText string) (*executor.ExecResult, error) {
	stmt, err := s.eng.parser.ParseOne(sqlText)
	if err != nil {
		return nil, classify(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch stmt.Kind {
	case sqlparser.StmtBegin:
		return s.begin()
	case sqlparser.StmtCommit:
		return s.commit()
	case sqlparser.StmtRollback:
		return s.rollback()
	case sqlparser.StmtSelect, sqlparser.StmtExplain:
		return nil, classify(fmt.Errorf("engine: use Query, not Exec, for %s statements", stmt.Kind))
	}

	return s.execStatement(ctx, stmt)
}

// Query runs a SELECT or EXPLAIN statement and returns its rows.
func (s *Session) Query(ctx context.Context, sqlText string) (*executor.QueryResult, error) {
	stmt, err := s.eng.parser.ParseOne(sqlText)
	if err != nil {
		return nil, classify(err)
	}
	if stmt.Kind != sqlparser.StmtSelect && stmt.Kind != sqlparser.StmtExplain {
		return nil, classify(fmt.Errorf("engine: use Exec, not Query, for %s statements", stmt.Kind))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cat := s.eng.Catalog()
	plan, err := planner.Build(stmt, cat)
	if err != nil {
		return nil, classify(err)
	}

	autocommit := !s.inTx
	xid := s.xid
	if autocommit {
		xid, _ = s.eng.store.TxManager().AutoCommitSnapshot()
	}

	ex := executor.New(s.eng.store, cat, s.eng.log)
	res, err := ex.ExecuteQuery(ctx, plan, xid)
	if autocommit {
		// A query never mutates, so there is nothing to roll back on
		// error: either way the snapshot transaction is just retired.
		_ = s.eng.store.Commit(xid)
	}
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

func (s *Session) begin() (*executor.ExecResult, error) {
	if s.inTx {
		return nil, &EngineError{Kind: ErrTransaction, Err: fmt.Errorf("engine: nested transactions are not supported")}
	}
	s.xid = s.eng.store.TxManager().Begin(s.level)
	s.inTx = true
	return &executor.ExecResult{TxKind: sqlparser.StmtBegin}, nil
}

func (s *Session) commit() (*executor.ExecResult, error) {
	if !s.inTx {
		return nil, &EngineError{Kind: ErrTransaction, Err: fmt.Errorf("engine: COMMIT with no active transaction")}
	}
	xid := s.xid

	var changes []mvcc.Change
	if s.eng.persist != nil {
		tx, err := s.eng.store.TxManager().Get(xid)
		if err != nil {
			return nil, classify(err)
		}
		changes = tx.ChangeLog()
	}

	if err := s.eng.store.Commit(xid); err != nil {
		return nil, classify(err)
	}
	s.inTx = false

	// The whole transaction's mutations are flushed to the WAL as one
	// batch here, after the commit succeeds, rather than per-statement:
	// an aborted explicit transaction should never have touched the log.
	if s.eng.persist != nil {
		for _, c := range changes {
			if err := s.flushChange(c); err != nil {
				return nil, &EngineError{Kind: ErrIO, Err: fmt.Errorf("engine: log committed transaction: %w", err)}
			}
		}
		s.eng.maybeCheckpoint()
	}
	return &executor.ExecResult{TxKind: sqlparser.StmtCommit}, nil
}

func (s *Session) rollback() (*executor.ExecResult, error) {
	if !s.inTx {
		return nil, &EngineError{Kind: ErrTransaction, Err: fmt.Errorf("engine: ROLLBACK with no active transaction")}
	}
	xid := s.xid
	if err := s.eng.store.Rollback(xid); err != nil {
		return nil, classify(err)
	}
	s.inTx = false
	return &executor.ExecResult{TxKind: sqlparser.StmtRollback}, nil
}

func (s *Session) execStatement(ctx context.Context, stmt *sqlparser.Statement) (*executor.ExecResult, error) {
	prevCat := s.eng.Catalog()
	plan, err := planner.Build(stmt, prevCat)
	if err != nil {
		return nil, classify(err)
	}

	autocommit := !s.inTx
	xid := s.xid
	if autocommit {
		xid, _ = s.eng.store.TxManager().AutoCommitSnapshot()
	}

	ex := executor.New(s.eng.store, prevCat, s.eng.log)
	res, err := ex.ExecuteStatement(ctx, plan, xid)
	if err != nil {
		if autocommit {
			_ = s.eng.store.Rollback(xid)
		}
		return nil, classify(err)
	}

	// DDL logs right after it lands in the catalog, whether or not an
	// explicit transaction is open: unlike row mutations, a DDL change has
	// no change-log entry to defer to COMMIT, and this engine does not
	// support undoing a DDL statement on ROLLBACK (matching the executor,
	// which applies DDL directly to the Store with no MVCC version chain).
	if res.CatalogAfter != nil && res.CatalogAfter != prevCat {
		s.eng.setCatalog(res.CatalogAfter)
		if s.eng.persist != nil {
			if err := s.logDDL(stmt, res.CatalogAfter); err != nil {
				return nil, &EngineError{Kind: ErrIO, Err: fmt.Errorf("engine: log DDL: %w", err)}
			}
		}
	}

	if autocommit {
		if s.eng.persist != nil && isDML(stmt.Kind) {
			if tx, terr := s.eng.store.TxManager().Get(xid); terr == nil {
				for _, c := range tx.ChangeLog() {
					if err := s.flushChange(c); err != nil {
						return nil, &EngineError{Kind: ErrIO, Err: fmt.Errorf("engine: log statement: %w", err)}
					}
				}
			}
		}
		if err := s.eng.store.Commit(xid); err != nil {
			return nil, classify(err)
		}
		if s.eng.persist != nil {
			s.eng.maybeCheckpoint()
		}
	}

	return res, nil
}

func isDML(k sqlparser.StmtKind) bool {
	return k == sqlparser.StmtInsert || k == sqlparser.StmtUpdate || k == sqlparser.StmtDelete
}

func (s *Session) flushChange(c mvcc.Change) error {
	m := s.eng.persist
	switch c.Kind {
	case mvcc.ChangeInsertRow:
		return m.LogInsert(c.Table, c.RowID, c.New)
	case mvcc.ChangeUpdateRow:
		return m.LogUpdate(c.Table, c.RowID, c.Old, c.New)
	case mvcc.ChangeDeleteRow:
		return m.LogDelete(c.Table, c.RowID, c.Old)
	default:
		return fmt.Errorf("unknown change kind %v", c.Kind)
	}
}

func (s *Session) logDDL(stmt *sqlparser.Statement, cat *catalog.Catalog) error {
	m := s.eng.persist
	switch stmt.Kind {
	case sqlparser.StmtCreateTable:
		ts, err := cat.GetTable(stmt.CreateTable.Table)
		if err != nil {
			return err
		}
		if err := m.LogCreateTable(ts); err != nil {
			return err
		}
		for _, cd := range stmt.CreateTable.Columns {
			if cd.PrimaryKey || cd.Unique {
				name := "pk_" + stmt.CreateTable.Table + "_" + cd.Name
				if err := m.LogCreateIndex(name, stmt.CreateTable.Table, []string{cd.Name}, true); err != nil {
					return err
				}
			}
		}
		return nil
	case sqlparser.StmtDropTable:
		return m.LogDropTable(stmt.DropTable.Table, true)
	case sqlparser.StmtCreateIndex:
		return m.LogCreateIndex(stmt.CreateIndex.Name, stmt.CreateIndex.Table, stmt.CreateIndex.Columns, stmt.CreateIndex.Unique)
	case sqlparser.StmtDropIndex:
		return m.LogDropIndex(stmt.DropIndex.Name, stmt.DropIndex.Table)
	default:
		return fmt.Errorf("unexpected DDL statement kind %s", stmt.Kind)
	}
}
