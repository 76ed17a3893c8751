package sqlparser

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// Parser wraps a tidb SQL parser instance, following the teacher's adapter
// shape of one *parser.Parser per Parser and statement-by-statement
// conversion into the internal AST.
type Parser struct {
	p *parser.Parser
}

// New returns a Parser ready to parse statements.
func New() *Parser {
	return &Parser{p: parser.New()}
}

// ParseAll splits sql on statement boundaries and converts every statement.
func (ps *Parser) ParseAll(sql string) ([]*Statement, error) {
	nodes, _, err := ps.p.Parse(sql, "", "")
	if err != nil {
		return nil, &ParseError{SQL: sql, Err: err}
	}
	out := make([]*Statement, 0, len(nodes))
	for _, n := range nodes {
		stmt, err := convertStmt(n)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// ParseOne parses sql expecting exactly one statement.
func (ps *Parser) ParseOne(sql string) (*Statement, error) {
	stmts, err := ps.ParseAll(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, &ParseError{SQL: sql, Err: fmt.Errorf("no statement found")}
	}
	return stmts[0], nil
}

func convertStmt(node ast.StmtNode) (*Statement, error) {
	raw := node.Text()
	switch n := node.(type) {
	case *ast.SelectStmt:
		sel, err := convertSelect(n)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtSelect, RawSQL: raw, Select: sel}, nil
	case *ast.InsertStmt:
		ins, err := convertInsert(n)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtInsert, RawSQL: raw, Insert: ins}, nil
	case *ast.UpdateStmt:
		upd, err := convertUpdate(n)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtUpdate, RawSQL: raw, Update: upd}, nil
	case *ast.DeleteStmt:
		del, err := convertDelete(n)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtDelete, RawSQL: raw, Delete: del}, nil
	case *ast.CreateTableStmt:
		ct, err := convertCreateTable(n)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtCreateTable, RawSQL: raw, CreateTable: ct}, nil
	case *ast.DropTableStmt:
		return &Statement{Kind: StmtDropTable, RawSQL: raw, DropTable: convertDropTable(n)}, nil
	case *ast.CreateIndexStmt:
		ci, err := convertCreateIndex(n)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtCreateIndex, RawSQL: raw, CreateIndex: ci}, nil
	case *ast.DropIndexStmt:
		return &Statement{Kind: StmtDropIndex, RawSQL: raw, DropIndex: convertDropIndex(n)}, nil
	case *ast.BeginStmt:
		return &Statement{Kind: StmtBegin, RawSQL: raw}, nil
	case *ast.CommitStmt:
		return &Statement{Kind: StmtCommit, RawSQL: raw}, nil
	case *ast.RollbackStmt:
		return &Statement{Kind: StmtRollback, RawSQL: raw}, nil
	case *ast.ExplainStmt:
		inner, err := convertStmt(n.Stmt)
		if err != nil {
			return nil, err
		}
		return &Statement{Kind: StmtExplain, RawSQL: raw, Explain: &ExplainStmt{Inner: inner, Analyze: n.Analyze}}, nil
	default:
		return nil, &UnsupportedError{What: fmt.Sprintf("%T", node)}
	}
}
