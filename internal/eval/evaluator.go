package eval

import (
	"fmt"
	"math"

	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

// SubqueryRunner executes a scalar subquery plan and returns its single
// result value, supplied by the executor (eval has no storage dependency).
type SubqueryRunner func(sel *sqlparser.SelectStmt, outer Binding) (value.Value, error)

// Evaluator walks sqlparser.Expr trees against a Binding, dispatching
// function calls through a Registry and LIKE patterns through a compiled,
// LRU-memoized matcher.
type Evaluator struct {
	Functions *Registry
	like      *likeCompiler
	Subquery  SubqueryRunner
}

// New returns an Evaluator using the default builtin function set.
func New() *Evaluator {
	return &Evaluator{Functions: DefaultRegistry(), like: newLikeCompiler()}
}

// NewWithRegistry returns an Evaluator using a caller-supplied registry,
// e.g. one with embedder-specific functions layered on top of the default.
func NewWithRegistry(r *Registry) *Evaluator {
	return &Evaluator{Functions: r, like: newLikeCompiler()}
}

// Eval evaluates expr against b.
func (e *Evaluator) Eval(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	if expr == nil {
		return value.Null(), nil
	}
	switch expr.Kind {
	case sqlparser.ExprLiteral:
		return expr.Literal, nil

	case sqlparser.ExprColumn:
		v, ok := b.Column(expr.Column)
		if !ok {
			return value.Value{}, &UnknownColumnError{Column: expr.Column}
		}
		return v, nil

	case sqlparser.ExprBinary:
		return e.evalBinary(expr, b)

	case sqlparser.ExprUnary:
		return e.evalUnary(expr, b)

	case sqlparser.ExprLike:
		return e.evalLike(expr, b)

	case sqlparser.ExprBetween:
		return e.evalBetween(expr, b)

	case sqlparser.ExprIsNull:
		v, err := e.Eval(expr.Left, b)
		if err != nil {
			return value.Value{}, err
		}
		result := v.IsNull()
		if expr.Not {
			result = !result
		}
		return value.NewBoolean(result), nil

	case sqlparser.ExprInList:
		return e.evalInList(expr, b)

	case sqlparser.ExprFunc:
		return e.evalFunc(expr, b)

	case sqlparser.ExprAggregate:
		return value.Value{}, fmt.Errorf("eval: aggregate %s must be evaluated by the executor's aggregation pass, not Eval", expr.Func)

	case sqlparser.ExprScalarSubquery:
		if e.Subquery == nil {
			return value.Value{}, fmt.Errorf("eval: scalar subquery support not wired")
		}
		return e.Subquery(expr.Subquery, b)

	default:
		return value.Value{}, fmt.Errorf("eval: unhandled expression kind %d", expr.Kind)
	}
}

// Matches evaluates expr as a boolean predicate (WHERE/ON/HAVING clauses),
// treating NULL as non-matching per SQL three-valued logic.
func (e *Evaluator) Matches(expr *sqlparser.Expr, b Binding) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := e.Eval(expr, b)
	if err != nil {
		return false, err
	}
	if v.IsNull() {
		return false, nil
	}
	return v.AsBool(), nil
}

func (e *Evaluator) evalBinary(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	switch expr.Op {
	case "logic and", "&&", "AND":
		l, err := e.Matches(expr.Left, b)
		if err != nil {
			return value.Value{}, err
		}
		if !l {
			return value.NewBoolean(false), nil
		}
		r, err := e.Matches(expr.Right, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBoolean(r), nil

	case "logic or", "||", "OR":
		l, err := e.Matches(expr.Left, b)
		if err != nil {
			return value.Value{}, err
		}
		if l {
			return value.NewBoolean(true), nil
		}
		r, err := e.Matches(expr.Right, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBoolean(r), nil
	}

	left, err := e.Eval(expr.Left, b)
	if err != nil {
		return value.Value{}, err
	}
	right, err := e.Eval(expr.Right, b)
	if err != nil {
		return value.Value{}, err
	}

	switch expr.Op {
	case "eq", "=":
		return value.NewBoolean(!left.IsNull() && !right.IsNull() && left.Equal(right)), nil
	case "ne", "!=", "<>":
		if left.IsNull() || right.IsNull() {
			return value.Null(), nil
		}
		return value.NewBoolean(!left.Equal(right)), nil
	case "lt", "<":
		return compareBool(left, right, func(c int) bool { return c < 0 })
	case "le", "<=":
		return compareBool(left, right, func(c int) bool { return c <= 0 })
	case "gt", ">":
		return compareBool(left, right, func(c int) bool { return c > 0 })
	case "ge", ">=":
		return compareBool(left, right, func(c int) bool { return c >= 0 })
	case "plus", "+":
		return arith(left, right, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case "minus", "-":
		return arith(left, right, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case "mul", "*":
		return arith(left, right, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case "div", "/":
		lf, lok := left.AsFloat64()
		rf, rok := right.AsFloat64()
		if !lok || !rok {
			return value.Null(), nil
		}
		if rf == 0 {
			return value.Value{}, fmt.Errorf("eval: division by zero")
		}
		return value.NewFloat(lf / rf), nil
	case "mod", "%":
		li, lok := left.AsInt64()
		ri, rok := right.AsInt64()
		if !lok || !rok || ri == 0 {
			return value.Null(), nil
		}
		return value.NewInteger(li % ri), nil
	default:
		return value.Value{}, &UnsupportedOperatorError{Op: expr.Op}
	}
}

func compareBool(left, right value.Value, pred func(int) bool) (value.Value, error) {
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	c, err := left.Compare(right)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewBoolean(pred(c)), nil
}

func arith(left, right value.Value, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (value.Value, error) {
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	li, lok := left.AsInt64()
	ri, rok := right.AsInt64()
	if lok && rok && left.Kind() == value.KindInteger && right.Kind() == value.KindInteger {
		return value.NewInteger(intOp(li, ri)), nil
	}
	lf, lok := left.AsFloat64()
	rf, rok := right.AsFloat64()
	if !lok || !rok {
		return value.Value{}, fmt.Errorf("eval: arithmetic on non-numeric operands")
	}
	result := floatOp(lf, rf)
	if math.IsNaN(result) {
		return value.NewFloat(math.NaN()), nil
	}
	return value.NewFloat(result), nil
}

func (e *Evaluator) evalUnary(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	v, err := e.Eval(expr.Left, b)
	if err != nil {
		return value.Value{}, err
	}
	switch expr.Op {
	case "not", "!", "NOT":
		if v.IsNull() {
			return value.Null(), nil
		}
		return value.NewBoolean(!v.AsBool()), nil
	case "minus", "-":
		if i, ok := v.AsInt64(); ok && v.Kind() == value.KindInteger {
			return value.NewInteger(-i), nil
		}
		if f, ok := v.AsFloat64(); ok {
			return value.NewFloat(-f), nil
		}
		return value.Value{}, fmt.Errorf("eval: unary minus on non-numeric operand")
	case "plus", "+":
		return v, nil
	default:
		return value.Value{}, &UnsupportedOperatorError{Op: expr.Op}
	}
}

func (e *Evaluator) evalLike(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	left, err := e.Eval(expr.Left, b)
	if err != nil {
		return value.Value{}, err
	}
	right, err := e.Eval(expr.Right, b)
	if err != nil {
		return value.Value{}, err
	}
	if left.IsNull() || right.IsNull() {
		return value.Null(), nil
	}
	s, _ := left.AsString()
	pattern, _ := right.AsString()
	ok, err := e.like.match(s, pattern, false)
	if err != nil {
		return value.Value{}, err
	}
	if expr.Not {
		ok = !ok
	}
	return value.NewBoolean(ok), nil
}

func (e *Evaluator) evalBetween(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	target, err := e.Eval(expr.Left, b)
	if err != nil {
		return value.Value{}, err
	}
	lo, err := e.Eval(expr.BetweenLow, b)
	if err != nil {
		return value.Value{}, err
	}
	hi, err := e.Eval(expr.BetweenHigh, b)
	if err != nil {
		return value.Value{}, err
	}
	if target.IsNull() || lo.IsNull() || hi.IsNull() {
		return value.Null(), nil
	}
	cl, err := target.Compare(lo)
	if err != nil {
		return value.Value{}, err
	}
	ch, err := target.Compare(hi)
	if err != nil {
		return value.Value{}, err
	}
	result := cl >= 0 && ch <= 0
	if expr.Not {
		result = !result
	}
	return value.NewBoolean(result), nil
}

func (e *Evaluator) evalInList(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	target, err := e.Eval(expr.Left, b)
	if err != nil {
		return value.Value{}, err
	}
	if target.IsNull() {
		return value.Null(), nil
	}
	found := false
	sawNull := false
	for _, item := range expr.InList {
		v, err := e.Eval(item, b)
		if err != nil {
			return value.Value{}, err
		}
		if v.IsNull() {
			sawNull = true
			continue
		}
		if target.Equal(v) {
			found = true
			break
		}
	}
	if found {
		return value.NewBoolean(!expr.Not), nil
	}
	if sawNull {
		return value.Null(), nil
	}
	return value.NewBoolean(expr.Not), nil
}

func (e *Evaluator) evalFunc(expr *sqlparser.Expr, b Binding) (value.Value, error) {
	info, ok := e.Functions.Get(expr.Func)
	if !ok {
		return value.Value{}, &UnknownFunctionError{Name: expr.Func}
	}
	args := make([]value.Value, 0, len(expr.Args))
	for _, a := range expr.Args {
		v, err := e.Eval(a, b)
		if err != nil {
			return value.Value{}, err
		}
		args = append(args, v)
	}
	if err := checkArity(info, len(args)); err != nil {
		return value.Value{}, err
	}
	return info.Handler(args)
}
