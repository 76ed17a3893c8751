package sqlparser

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/memdb/internal/value"
)

func convertExpr(node ast.ExprNode) (*Expr, error) {
	if node == nil {
		return nil, nil
	}
	switch n := node.(type) {
	case *ast.BinaryOperationExpr:
		left, err := convertExpr(n.L)
		if err != nil {
			return nil, err
		}
		right, err := convertExpr(n.R)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprBinary, Op: n.Op.String(), Left: left, Right: right}, nil

	case *ast.UnaryOperationExpr:
		inner, err := convertExpr(n.V)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprUnary, Op: n.Op.String(), Left: inner}, nil

	case *ast.ParenthesesExpr:
		return convertExpr(n.Expr)

	case *ast.ColumnNameExpr:
		return &Expr{Kind: ExprColumn, Column: qualifiedColumnName(n.Name)}, nil

	case ast.ValueExpr:
		v, err := valueFromDatum(n.GetValue())
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLiteral, Literal: v}, nil

	case *ast.FuncCallExpr:
		args := make([]*Expr, 0, len(n.Args))
		for _, a := range n.Args {
			ce, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, ce)
		}
		return &Expr{Kind: ExprFunc, Func: n.FnName.String(), Args: args}, nil

	case *ast.AggregateFuncExpr:
		args := make([]*Expr, 0, len(n.Args))
		for _, a := range n.Args {
			ce, err := convertExpr(a)
			if err != nil {
				return nil, err
			}
			args = append(args, ce)
		}
		return &Expr{Kind: ExprAggregate, Func: n.F, Args: args, Distinct: n.Distinct}, nil

	case *ast.PatternLikeOrIlikeExpr:
		left, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		right, err := convertExpr(n.Pattern)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprLike, Not: n.Not, Left: left, Right: right}, nil

	case *ast.BetweenExpr:
		target, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		lo, err := convertExpr(n.Left)
		if err != nil {
			return nil, err
		}
		hi, err := convertExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprBetween, Not: n.Not, Left: target, BetweenLow: lo, BetweenHigh: hi}, nil

	case *ast.PatternInExpr:
		target, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		list := make([]*Expr, 0, len(n.List))
		for _, item := range n.List {
			ce, err := convertExpr(item)
			if err != nil {
				return nil, err
			}
			list = append(list, ce)
		}
		return &Expr{Kind: ExprInList, Not: n.Not, Left: target, InList: list}, nil

	case *ast.IsNullExpr:
		target, err := convertExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprIsNull, Not: n.Not, Left: target}, nil

	case *ast.SubqueryExpr:
		sel, ok := n.Query.(*ast.SelectStmt)
		if !ok {
			return nil, &UnsupportedError{What: "non-SELECT subquery"}
		}
		inner, err := convertSelect(sel)
		if err != nil {
			return nil, err
		}
		return &Expr{Kind: ExprScalarSubquery, Subquery: inner}, nil

	default:
		return nil, &UnsupportedError{What: fmt.Sprintf("expression %T", node)}
	}
}

func qualifiedColumnName(name *ast.ColumnName) string {
	col := name.Name.String()
	if name.Table.L == "" {
		return col
	}
	if name.Schema.L == "" {
		return name.Table.String() + "." + col
	}
	return name.Schema.String() + "." + name.Table.String() + "." + col
}

// valueFromDatum converts the Go value test_driver.ValueExpr.GetValue()
// returns into the engine's tagged Value union.
func valueFromDatum(raw any) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Null(), nil
	case int64:
		return value.NewInteger(v), nil
	case uint64:
		return value.NewInteger(int64(v)), nil
	case int:
		return value.NewInteger(int64(v)), nil
	case float32:
		return value.NewFloat(float64(v)), nil
	case float64:
		return value.NewFloat(v), nil
	case string:
		return value.NewText(v), nil
	case []byte:
		return value.NewText(string(v)), nil
	case bool:
		return value.NewBoolean(v), nil
	default:
		// types.Datum-backed decimal/time literals stringify sensibly via
		// fmt; store them as text rather than failing the whole statement.
		return value.NewText(fmt.Sprintf("%v", v)), nil
	}
}
