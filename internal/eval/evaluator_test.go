package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

func usersBinding() RowBinding {
	schema := value.NewSchema([]value.Column{
		value.NewColumn("id", value.Integer()),
		value.NewColumn("name", value.Text()),
		value.NewColumn("age", value.Integer()),
		value.NewColumn("nickname", value.Text()),
	})
	row := value.Row{value.NewInteger(1), value.NewText("Alice"), value.NewInteger(30), value.Null()}
	return RowBinding{Schema: schema, Row: row}
}

func col(name string) *sqlparser.Expr {
	return &sqlparser.Expr{Kind: sqlparser.ExprColumn, Column: name}
}

func lit(v value.Value) *sqlparser.Expr {
	return &sqlparser.Expr{Kind: sqlparser.ExprLiteral, Literal: v}
}

func bin(op string, l, r *sqlparser.Expr) *sqlparser.Expr {
	return &sqlparser.Expr{Kind: sqlparser.ExprBinary, Op: op, Left: l, Right: r}
}

func TestEval_ColumnAndLiteral(t *testing.T) {
	e := New()
	b := usersBinding()

	v, err := e.Eval(col("name"), b)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "Alice", s)

	v, err = e.Eval(lit(value.NewInteger(42)), b)
	require.NoError(t, err)
	i, _ := v.AsInt64()
	assert.Equal(t, int64(42), i)
}

func TestEval_UnknownColumn(t *testing.T) {
	e := New()
	_, err := e.Eval(col("missing"), usersBinding())
	var uce *UnknownColumnError
	assert.ErrorAs(t, err, &uce)
}

func TestEval_ComparisonAndArithmetic(t *testing.T) {
	e := New()
	b := usersBinding()

	ok, err := e.Matches(bin(">", col("age"), lit(value.NewInteger(18))), b)
	require.NoError(t, err)
	assert.True(t, ok)

	v, err := e.Eval(bin("+", col("age"), lit(value.NewInteger(1))), b)
	require.NoError(t, err)
	i, _ := v.AsInt64()
	assert.Equal(t, int64(31), i)

	v, err = e.Eval(bin("/", lit(value.NewInteger(7)), lit(value.NewInteger(2))), b)
	require.NoError(t, err)
	f, _ := v.AsFloat64()
	assert.InDelta(t, 3.5, f, 1e-9)
}

func TestEval_DivisionByZero(t *testing.T) {
	e := New()
	_, err := e.Eval(bin("/", lit(value.NewInteger(1)), lit(value.NewInteger(0))), usersBinding())
	assert.Error(t, err)
}

func TestEval_LogicalShortCircuit(t *testing.T) {
	e := New()
	b := usersBinding()

	expr := &sqlparser.Expr{
		Kind: sqlparser.ExprBinary, Op: "AND",
		Left:  bin("=", col("id"), lit(value.NewInteger(999))),
		Right: col("missing"), // would error if evaluated
	}
	ok, err := e.Matches(expr, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEval_Like(t *testing.T) {
	e := New()
	b := usersBinding()

	expr := &sqlparser.Expr{Kind: sqlparser.ExprLike, Left: col("name"), Right: lit(value.NewText("Al%"))}
	ok, err := e.Matches(expr, b)
	require.NoError(t, err)
	assert.True(t, ok)

	expr.Not = true
	ok, err = e.Matches(expr, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEval_Between(t *testing.T) {
	e := New()
	b := usersBinding()

	expr := &sqlparser.Expr{
		Kind: sqlparser.ExprBetween, Left: col("age"),
		BetweenLow: lit(value.NewInteger(18)), BetweenHigh: lit(value.NewInteger(40)),
	}
	ok, err := e.Matches(expr, b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEval_IsNull(t *testing.T) {
	e := New()
	b := usersBinding()

	expr := &sqlparser.Expr{Kind: sqlparser.ExprIsNull, Left: col("nickname")}
	ok, err := e.Matches(expr, b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEval_InList(t *testing.T) {
	e := New()
	b := usersBinding()

	expr := &sqlparser.Expr{
		Kind: sqlparser.ExprInList, Left: col("id"),
		InList: []*sqlparser.Expr{lit(value.NewInteger(5)), lit(value.NewInteger(1))},
	}
	ok, err := e.Matches(expr, b)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEval_FuncCallAndCoalesce(t *testing.T) {
	e := New()
	b := usersBinding()

	expr := &sqlparser.Expr{Kind: sqlparser.ExprFunc, Func: "upper", Args: []*sqlparser.Expr{col("name")}}
	v, err := e.Eval(expr, b)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "ALICE", s)

	expr = &sqlparser.Expr{
		Kind: sqlparser.ExprFunc, Func: "COALESCE",
		Args: []*sqlparser.Expr{col("nickname"), lit(value.NewText("anon"))},
	}
	v, err = e.Eval(expr, b)
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "anon", s)
}

func TestEval_UnknownFunction(t *testing.T) {
	e := New()
	expr := &sqlparser.Expr{Kind: sqlparser.ExprFunc, Func: "NOPE"}
	_, err := e.Eval(expr, usersBinding())
	var ufe *UnknownFunctionError
	assert.ErrorAs(t, err, &ufe)
}

func TestEval_ArityMismatch(t *testing.T) {
	e := New()
	expr := &sqlparser.Expr{Kind: sqlparser.ExprFunc, Func: "LENGTH"}
	_, err := e.Eval(expr, usersBinding())
	assert.Error(t, err)
}

func TestEval_AggregateNotSupportedDirectly(t *testing.T) {
	e := New()
	expr := &sqlparser.Expr{Kind: sqlparser.ExprAggregate, Func: "COUNT"}
	_, err := e.Eval(expr, usersBinding())
	assert.Error(t, err)
}
