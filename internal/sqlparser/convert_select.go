package sqlparser

import "github.com/pingcap/tidb/pkg/parser/ast"

func convertSelect(stmt *ast.SelectStmt) (*SelectStmt, error) {
	out := &SelectStmt{Distinct: stmt.Distinct}

	if stmt.With != nil {
		ctes, err := convertCTEs(stmt.With)
		if err != nil {
			return nil, err
		}
		out.CTEs = ctes
	}

	if stmt.Fields != nil {
		for _, f := range stmt.Fields.Fields {
			col, err := convertSelectField(f)
			if err != nil {
				return nil, err
			}
			out.Columns = append(out.Columns, *col)
		}
	}

	if stmt.From != nil && stmt.From.TableRefs != nil {
		from, err := convertTableRef(stmt.From.TableRefs)
		if err != nil {
			return nil, err
		}
		out.From = from
	}

	if stmt.Where != nil {
		w, err := convertExpr(stmt.Where)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}

	if stmt.GroupBy != nil {
		for _, item := range stmt.GroupBy.Items {
			ce, err := convertExpr(item.Expr)
			if err != nil {
				return nil, err
			}
			out.GroupBy = append(out.GroupBy, ce)
		}
	}

	if stmt.Having != nil && stmt.Having.Expr != nil {
		h, err := convertExpr(stmt.Having.Expr)
		if err != nil {
			return nil, err
		}
		out.Having = h
	}

	orderBy, err := convertOrderBy(stmt.OrderBy)
	if err != nil {
		return nil, err
	}
	out.OrderBy = orderBy

	count, offset, err := convertLimit(stmt.Limit)
	if err != nil {
		return nil, err
	}
	out.Limit = count
	out.Offset = offset

	return out, nil
}

func convertSelectField(f *ast.SelectField) (*SelectColumn, error) {
	if f.WildCard != nil {
		table := ""
		if f.WildCard.Table.L != "" {
			table = f.WildCard.Table.String()
		}
		return &SelectColumn{Star: true, StarTable: table}, nil
	}
	ce, err := convertExpr(f.Expr)
	if err != nil {
		return nil, err
	}
	alias := ""
	if f.AsName.L != "" {
		alias = f.AsName.String()
	}
	return &SelectColumn{Expr: ce, Alias: alias}, nil
}

// convertTableRef flattens the Join tree tidb produces for FROM/JOIN into a
// base table plus an ordered list of join clauses, matching the way the
// planner wants to build its join plan left to right.
func convertTableRef(node ast.ResultSetNode) (*TableRef, error) {
	switch n := node.(type) {
	case *ast.TableSource:
		switch src := n.Source.(type) {
		case *ast.TableName:
			name := src.Name.String()
			if src.Schema.String() != "" {
				name = src.Schema.String() + "." + name
			}
			alias := ""
			if n.AsName.L != "" {
				alias = n.AsName.String()
			}
			return &TableRef{Table: name, Alias: alias}, nil
		case *ast.SelectStmt:
			sub, err := convertSelect(src)
			if err != nil {
				return nil, err
			}
			alias := ""
			if n.AsName.L != "" {
				alias = n.AsName.String()
			}
			return &TableRef{Subquery: sub, Alias: alias}, nil
		default:
			return nil, &UnsupportedError{What: "FROM source"}
		}

	case *ast.Join:
		left, err := convertTableRef(n.Left)
		if err != nil {
			return nil, err
		}
		if n.Right == nil {
			return left, nil
		}
		rightRef, err := convertTableRef(n.Right)
		if err != nil {
			return nil, err
		}
		jt := JoinInner
		switch n.Tp {
		case ast.LeftJoin:
			jt = JoinLeft
		case ast.RightJoin:
			jt = JoinRight
		case ast.CrossJoin:
			jt = JoinCross
		}
		var on *Expr
		if n.On != nil && n.On.Expr != nil {
			on, err = convertExpr(n.On.Expr)
			if err != nil {
				return nil, err
			}
		}
		left.Joins = append(left.Joins, JoinClause{Type: jt, Table: rightRef.Table, Alias: rightRef.Alias, On: on})
		left.Joins = append(left.Joins, rightRef.Joins...)
		return left, nil

	default:
		return nil, &UnsupportedError{What: "FROM clause"}
	}
}

// convertCTEs converts a WITH clause. A recursive member is recognized by
// the standard shape of its body being a UNION [ALL] of exactly two
// branches; anything else is treated as a non-recursive, single-query CTE.
func convertCTEs(with *ast.WithClause) ([]CTE, error) {
	out := make([]CTE, 0, len(with.CTEs))
	for _, c := range with.CTEs {
		cte := CTE{Name: c.Name.String(), Recursive: with.IsRecursive}
		for _, col := range c.ColNameList {
			cte.Columns = append(cte.Columns, col.String())
		}

		var body ast.ResultSetNode
		if c.Query != nil {
			body = c.Query.Query
		}

		if setOpr, ok := body.(*ast.SetOprStmt); ok && with.IsRecursive && setOpr.SelectList != nil && len(setOpr.SelectList.Selects) == 2 {
			anchorNode, aok := setOpr.SelectList.Selects[0].(*ast.SelectStmt)
			memberNode, mok := setOpr.SelectList.Selects[1].(*ast.SelectStmt)
			if aok && mok {
				anchor, err := convertSelect(anchorNode)
				if err != nil {
					return nil, err
				}
				member, err := convertSelect(memberNode)
				if err != nil {
					return nil, err
				}
				cte.Anchor = anchor
				cte.RecursiveMember = member
				out = append(out, cte)
				continue
			}
		}

		cte.Recursive = false
		sel, ok := body.(*ast.SelectStmt)
		if !ok {
			return nil, &UnsupportedError{What: "CTE body"}
		}
		anchor, err := convertSelect(sel)
		if err != nil {
			return nil, err
		}
		cte.Anchor = anchor
		out = append(out, cte)
	}
	return out, nil
}
