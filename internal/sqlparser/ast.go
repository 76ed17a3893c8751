// Package sqlparser adapts github.com/pingcap/tidb/pkg/parser's SQL AST into
// a small internal Statement/Expr union the planner and evaluator consume,
// so neither of those packages has to know tidb's ast shape.
package sqlparser

import "github.com/kasuganosora/memdb/internal/value"

// StmtKind tags which branch of Statement is populated.
type StmtKind int

const (
	StmtSelect StmtKind = iota
	StmtInsert
	StmtUpdate
	StmtDelete
	StmtCreateTable
	StmtDropTable
	StmtCreateIndex
	StmtDropIndex
	StmtBegin
	StmtCommit
	StmtRollback
	StmtExplain
)

func (k StmtKind) String() string {
	switch k {
	case StmtSelect:
		return "SELECT"
	case StmtInsert:
		return "INSERT"
	case StmtUpdate:
		return "UPDATE"
	case StmtDelete:
		return "DELETE"
	case StmtCreateTable:
		return "CREATE TABLE"
	case StmtDropTable:
		return "DROP TABLE"
	case StmtCreateIndex:
		return "CREATE INDEX"
	case StmtDropIndex:
		return "DROP INDEX"
	case StmtBegin:
		return "BEGIN"
	case StmtCommit:
		return "COMMIT"
	case StmtRollback:
		return "ROLLBACK"
	case StmtExplain:
		return "EXPLAIN"
	default:
		return "UNKNOWN"
	}
}

// Statement is the tagged union over every statement kind this adapter
// understands. Exactly one of the pointer fields matching Kind is non-nil.
type Statement struct {
	Kind   StmtKind
	RawSQL string

	Select      *SelectStmt
	Insert      *InsertStmt
	Update      *UpdateStmt
	Delete      *DeleteStmt
	CreateTable *CreateTableStmt
	DropTable   *DropTableStmt
	CreateIndex *CreateIndexStmt
	DropIndex   *DropIndexStmt
	Explain     *ExplainStmt
}

// ExprKind tags which branch of Expr is populated.
type ExprKind int

const (
	ExprColumn ExprKind = iota
	ExprLiteral
	ExprBinary
	ExprUnary
	ExprFunc
	ExprAggregate
	ExprLike
	ExprBetween
	ExprIsNull
	ExprInList
	ExprStar
	ExprScalarSubquery
)

// Expr is the internal expression tree. Op carries the operator name for
// Binary/Unary nodes as the parser's opcode reports it ("eq", "plus", ...);
// Like nodes carry no Op and use Not for NOT LIKE.
type Expr struct {
	Kind ExprKind

	Column  string // qualified "table.col" or bare "col"
	Literal value.Value

	Op          string
	Left, Right *Expr

	Func     string
	Args     []*Expr
	Distinct bool // aggregate DISTINCT, e.g. COUNT(DISTINCT x)

	Not bool // negates Like/Between/IsNull/InList

	BetweenLow, BetweenHigh *Expr
	InList                  []*Expr

	Subquery *SelectStmt
}

// JoinType enumerates the join kinds the planner must implement.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinCross
)

func (j JoinType) String() string {
	switch j {
	case JoinLeft:
		return "LEFT"
	case JoinRight:
		return "RIGHT"
	case JoinCross:
		return "CROSS"
	default:
		return "INNER"
	}
}

// JoinClause is one table joined onto the accumulating FROM list.
type JoinClause struct {
	Type  JoinType
	Table string
	Alias string
	On    *Expr
}

// TableRef is a SELECT's FROM: a base table (or CTE/subquery reference by
// name) plus zero or more joins applied left to right.
type TableRef struct {
	Table    string
	Alias    string
	Subquery *SelectStmt // set when the FROM item is a derived table
	Joins    []JoinClause
}

// SelectColumn is one projected item: either Expr+Alias, or Star (and
// StarTable for "t.*").
type SelectColumn struct {
	Expr     *Expr
	Alias    string
	Star     bool
	StarTable string
}

// OrderByItem is one ORDER BY key.
type OrderByItem struct {
	Expr *Expr
	Desc bool
}

// CTE is one WITH [RECURSIVE] binding. For a recursive CTE, Anchor is the
// first member and RecursiveMember is the one that refers back to the CTE
// name; the planner iterates RecursiveMember to a fixpoint.
type CTE struct {
	Name            string
	Columns         []string
	Recursive       bool
	Anchor          *SelectStmt
	RecursiveMember *SelectStmt
}

// SelectStmt is a (possibly CTE-qualified) SELECT.
type SelectStmt struct {
	CTEs     []CTE
	Distinct bool
	Columns  []SelectColumn
	From     *TableRef
	Where    *Expr
	GroupBy  []*Expr
	Having   *Expr
	OrderBy  []OrderByItem
	Limit    *int64
	Offset   *int64
}

// InsertStmt is an INSERT ... VALUES statement. Each row is a list of
// expressions (usually literals) evaluated against no input row.
type InsertStmt struct {
	Table   string
	Columns []string
	Values  [][]*Expr
}

// Assignment is one SET target in an UPDATE.
type Assignment struct {
	Column string
	Value  *Expr
}

// UpdateStmt is an UPDATE ... SET ... WHERE statement.
type UpdateStmt struct {
	Table string
	Set   []Assignment
	Where *Expr
	Limit *int64
}

// DeleteStmt is a DELETE ... WHERE statement.
type DeleteStmt struct {
	Table string
	Where *Expr
	Limit *int64
}

// ColumnDef is one column of a CREATE TABLE.
type ColumnDef struct {
	Name       string
	Type       value.DataType
	Nullable   bool
	PrimaryKey bool
	Unique     bool
	Default    *Expr
	References *value.ForeignKey
}

// CreateTableStmt is a CREATE TABLE statement.
type CreateTableStmt struct {
	Table       string
	IfNotExists bool
	Columns     []ColumnDef
}

// DropTableStmt is a DROP TABLE statement.
type DropTableStmt struct {
	Table    string
	IfExists bool
}

// CreateIndexStmt is a CREATE [UNIQUE] INDEX statement.
type CreateIndexStmt struct {
	Name        string
	Table       string
	Columns     []string
	Unique      bool
	IfNotExists bool
}

// DropIndexStmt is a DROP INDEX statement.
type DropIndexStmt struct {
	Name     string
	Table    string
	IfExists bool
}

// ExplainStmt wraps another statement for EXPLAIN [ANALYZE].
type ExplainStmt struct {
	Inner   *Statement
	Analyze bool
}
