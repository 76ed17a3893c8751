// Package planner turns a parsed sqlparser.Statement into a tree of logical
// plan nodes the executor walks to produce results: table/index scans,
// filters, projections, joins, aggregation, sort, limit, and the recursive
// CTE fixpoint node.
package planner

import (
	"fmt"
	"strings"

	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// Kind tags which plan node variant a Plan is.
type Kind int

const (
	KindTableScan Kind = iota
	KindIndexScan
	KindFilter
	KindProject
	KindJoin
	KindAggregate
	KindSort
	KindLimit
	KindInsert
	KindUpdate
	KindDelete
	KindRecursiveCTE
	KindCTEScan
	KindDDL
	KindTxControl
	KindExplain
)

func (k Kind) String() string {
	switch k {
	case KindTableScan:
		return "TableScan"
	case KindIndexScan:
		return "IndexScan"
	case KindFilter:
		return "Filter"
	case KindProject:
		return "Project"
	case KindJoin:
		return "Join"
	case KindAggregate:
		return "Aggregate"
	case KindSort:
		return "Sort"
	case KindLimit:
		return "Limit"
	case KindInsert:
		return "Insert"
	case KindUpdate:
		return "Update"
	case KindDelete:
		return "Delete"
	case KindRecursiveCTE:
		return "RecursiveCTE"
	case KindCTEScan:
		return "CTEScan"
	case KindDDL:
		return "DDL"
	case KindTxControl:
		return "TxControl"
	case KindExplain:
		return "Explain"
	default:
		return "Unknown"
	}
}

// Plan is a single logical plan node. Only the fields relevant to Kind are
// populated; this mirrors a tagged union rather than an interface hierarchy
// so the executor's dispatch is a plain switch, matching this module's AST
// and expression types.
type Plan struct {
	Kind     Kind
	Children []*Plan
	Schema   value.Schema

	// KindTableScan / KindIndexScan
	Table       string
	Alias       string
	IndexColumn string // set when Kind == KindIndexScan
	IndexFilter *sqlparser.Expr

	// KindFilter
	Predicate *sqlparser.Expr

	// KindProject
	Columns  []sqlparser.SelectColumn
	Distinct bool

	// KindJoin
	JoinType JoinType
	JoinOn   *sqlparser.Expr

	// KindAggregate
	GroupBy    []*sqlparser.Expr
	Aggregates []*sqlparser.Expr
	Having     *sqlparser.Expr

	// KindSort
	OrderBy []sqlparser.OrderByItem

	// KindLimit
	Limit  *int64
	Offset *int64

	// KindInsert
	InsertColumns []string
	InsertValues  [][]*sqlparser.Expr
	InsertSelect  *Plan

	// KindUpdate
	Assignments []sqlparser.Assignment

	// KindRecursiveCTE
	CTEName         string
	Anchor          *Plan
	RecursiveMember *Plan

	// KindCTEScan
	CTERef string

	// KindDDL
	Statement *sqlparser.Statement

	// KindTxControl
	TxKind sqlparser.StmtKind

	// KindExplain
	Inner *Plan
	Analyze bool
}

// JoinType mirrors sqlparser.JoinType; kept distinct so the planner can add
// join-strategy concerns later without reaching back into the AST package.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeft
	JoinRight
	JoinCross
)

// Explain renders the plan tree one node per line, indented by depth, in the
// style of the teacher's Plan.Explain but over this module's node shape.
func (p *Plan) Explain() string {
	var sb strings.Builder
	explainNode(&sb, p, 0)
	return sb.String()
}

func explainNode(sb *strings.Builder, p *Plan, depth int) {
	if p == nil {
		return
	}
	for i := 0; i < depth; i++ {
		sb.WriteString("  ")
	}
	sb.WriteString(p.Kind.String())
	if p.Table != "" {
		sb.WriteString(fmt.Sprintf("(%s)", p.Table))
	}
	sb.WriteString("\n")
	for _, c := range p.Children {
		explainNode(sb, c, depth+1)
	}
	if p.Anchor != nil {
		explainNode(sb, p.Anchor, depth+1)
	}
	if p.RecursiveMember != nil {
		explainNode(sb, p.RecursiveMember, depth+1)
	}
	if p.Inner != nil {
		explainNode(sb, p.Inner, depth+1)
	}
}
