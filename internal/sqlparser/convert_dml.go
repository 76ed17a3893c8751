package sqlparser

import "github.com/pingcap/tidb/pkg/parser/ast"

func baseTableName(refs *ast.TableRefsClause) string {
	if refs == nil || refs.TableRefs == nil {
		return ""
	}
	if src, ok := refs.TableRefs.Left.(*ast.TableSource); ok {
		if tn, ok := src.Source.(*ast.TableName); ok {
			if tn.Schema.String() != "" {
				return tn.Schema.String() + "." + tn.Name.String()
			}
			return tn.Name.String()
		}
	}
	return ""
}

func convertInsert(stmt *ast.InsertStmt) (*InsertStmt, error) {
	out := &InsertStmt{Table: baseTableName(stmt.Table)}
	for _, col := range stmt.Columns {
		out.Columns = append(out.Columns, col.Name.String())
	}
	for _, row := range stmt.Lists {
		vals := make([]*Expr, 0, len(row))
		for _, e := range row {
			ce, err := convertExpr(e)
			if err != nil {
				return nil, err
			}
			vals = append(vals, ce)
		}
		out.Values = append(out.Values, vals)
	}
	return out, nil
}

func convertLimit(lim *ast.Limit) (*int64, *int64, error) {
	var count, offset *int64
	if lim == nil {
		return nil, nil, nil
	}
	if lim.Count != nil {
		ce, err := convertExpr(lim.Count)
		if err != nil {
			return nil, nil, err
		}
		if i, ok := ce.Literal.AsInt64(); ok {
			count = &i
		}
	}
	if lim.Offset != nil {
		ce, err := convertExpr(lim.Offset)
		if err != nil {
			return nil, nil, err
		}
		if i, ok := ce.Literal.AsInt64(); ok {
			offset = &i
		}
	}
	return count, offset, nil
}

func convertOrderBy(order *ast.OrderByClause) ([]OrderByItem, error) {
	if order == nil {
		return nil, nil
	}
	items := make([]OrderByItem, 0, len(order.Items))
	for _, it := range order.Items {
		ce, err := convertExpr(it.Expr)
		if err != nil {
			return nil, err
		}
		items = append(items, OrderByItem{Expr: ce, Desc: it.Desc})
	}
	return items, nil
}

func convertUpdate(stmt *ast.UpdateStmt) (*UpdateStmt, error) {
	out := &UpdateStmt{Table: baseTableName(stmt.TableRefs)}
	for _, a := range stmt.List {
		ce, err := convertExpr(a.Expr)
		if err != nil {
			return nil, err
		}
		out.Set = append(out.Set, Assignment{Column: a.Column.Name.String(), Value: ce})
	}
	if stmt.Where != nil {
		w, err := convertExpr(stmt.Where)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}
	count, _, err := convertLimit(stmt.Limit)
	if err != nil {
		return nil, err
	}
	out.Limit = count
	return out, nil
}

func convertDelete(stmt *ast.DeleteStmt) (*DeleteStmt, error) {
	out := &DeleteStmt{Table: baseTableName(stmt.TableRefs)}
	if stmt.Where != nil {
		w, err := convertExpr(stmt.Where)
		if err != nil {
			return nil, err
		}
		out.Where = w
	}
	count, _, err := convertLimit(stmt.Limit)
	if err != nil {
		return nil, err
	}
	out.Limit = count
	return out, nil
}
