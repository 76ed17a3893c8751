package executor

import (
	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/eval"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/storage"
	"github.com/kasuganosora/memdb/internal/value"
)

// executeDDL runs a CREATE/DROP TABLE|INDEX against the Store and returns
// the Catalog snapshot that should replace Executor.Catalog afterwards; the
// Catalog itself is never mutated in place.
func (e *Executor) executeDDL(p *planner.Plan) (*ExecResult, error) {
	stmt := p.Statement
	switch stmt.Kind {
	case sqlparser.StmtCreateTable:
		return e.executeCreateTable(stmt.CreateTable)
	case sqlparser.StmtDropTable:
		return e.executeDropTable(stmt.DropTable)
	case sqlparser.StmtCreateIndex:
		return e.executeCreateIndex(stmt.CreateIndex)
	case sqlparser.StmtDropIndex:
		return e.executeDropIndex(stmt.DropIndex)
	default:
		return nil, &planner.UnsupportedStatementError{What: stmt.Kind.String()}
	}
}

func (e *Executor) executeCreateTable(ct *sqlparser.CreateTableStmt) (*ExecResult, error) {
	if e.Catalog.HasTable(ct.Table) {
		if ct.IfNotExists {
			return &ExecResult{CatalogAfter: e.Catalog}, nil
		}
		return nil, &catalog.TableExistsError{Name: ct.Table}
	}

	cols := make([]value.Column, len(ct.Columns))
	for i, cd := range ct.Columns {
		col := value.Column{Name: cd.Name, Type: cd.Type, Nullable: cd.Nullable}
		if cd.PrimaryKey {
			col = col.AsPrimaryKey()
		}
		if cd.Unique {
			col = col.AsUnique()
		}
		if cd.References != nil {
			col = col.WithReferences(cd.References.Table, cd.References.Column)
		}
		if cd.Default != nil {
			v, err := e.Eval.Eval(cd.Default, eval.EmptyBinding{})
			if err != nil {
				return nil, err
			}
			col = col.WithDefault(v)
		}
		cols[i] = col
	}

	ts := value.NewTableSchema(ct.Table, value.NewSchema(cols))
	for _, cd := range ct.Columns {
		if cd.PrimaryKey || cd.Unique {
			ts = ts.WithIndex(cd.Name)
		}
	}

	if err := e.Store.CreateTable(ts); err != nil {
		return nil, err
	}
	for _, cd := range ct.Columns {
		if cd.PrimaryKey || cd.Unique {
			name := "pk_" + ct.Table + "_" + cd.Name
			if err := e.Store.CreateIndex(name, ct.Table, []string{cd.Name}, true); err != nil {
				return nil, err
			}
		}
	}

	next := e.Catalog.WithTable(ts)
	e.Catalog = next
	return &ExecResult{CatalogAfter: next}, nil
}

func (e *Executor) executeDropTable(dt *sqlparser.DropTableStmt) (*ExecResult, error) {
	if !e.Catalog.HasTable(dt.Table) {
		if dt.IfExists {
			return &ExecResult{CatalogAfter: e.Catalog}, nil
		}
		return nil, &catalog.TableNotFoundError{Name: dt.Table}
	}
	if err := e.Store.DropTable(dt.Table); err != nil {
		return nil, err
	}
	next := e.Catalog.WithoutTable(dt.Table)
	e.Catalog = next
	return &ExecResult{CatalogAfter: next}, nil
}

func (e *Executor) executeCreateIndex(ci *sqlparser.CreateIndexStmt) (*ExecResult, error) {
	ts, err := e.Catalog.GetTable(ci.Table)
	if err != nil {
		return nil, err
	}
	if err := e.Store.CreateIndex(ci.Name, ci.Table, ci.Columns, ci.Unique); err != nil {
		if ci.IfNotExists {
			if _, ok := err.(*storage.IndexExistsError); ok {
				return &ExecResult{CatalogAfter: e.Catalog}, nil
			}
		}
		return nil, err
	}
	for _, col := range ci.Columns {
		ts = ts.WithIndex(col)
	}
	next := e.Catalog.WithTable(ts)
	e.Catalog = next
	return &ExecResult{CatalogAfter: next}, nil
}

func (e *Executor) executeDropIndex(di *sqlparser.DropIndexStmt) (*ExecResult, error) {
	if err := e.Store.DropIndex(di.Name, di.Table); err != nil {
		if di.IfExists {
			if _, ok := err.(*storage.IndexNotFoundError); ok {
				return &ExecResult{CatalogAfter: e.Catalog}, nil
			}
		}
		return nil, err
	}
	return &ExecResult{CatalogAfter: e.Catalog}, nil
}
