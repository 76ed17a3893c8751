package sqlparser

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"

	"github.com/kasuganosora/memdb/internal/value"
)

// dataTypeFromTiDB maps a tidb column type string (as rendered by
// types.FieldType.String(), with length/precision stripped) onto the
// engine's DataType, the same simplify-then-switch approach the teacher's
// adapter uses for VARCHAR(255)/DECIMAL(10,2)-shaped type strings.
func dataTypeFromTiDB(full string) value.DataType {
	simplified := full
	if idx := strings.Index(full, "("); idx != -1 {
		simplified = full[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(simplified)) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT":
		return value.Integer()
	case "FLOAT", "DOUBLE", "DECIMAL", "NUMERIC", "REAL":
		return value.Float()
	case "VARCHAR", "CHAR", "TEXT", "TINYTEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET":
		return value.Text()
	case "BOOL", "BOOLEAN":
		return value.Boolean()
	case "DATETIME", "TIMESTAMP":
		return value.Timestamp()
	case "DATE":
		return value.Date()
	case "JSON":
		return value.JSON()
	default:
		return value.Unknown()
	}
}

func convertCreateTable(stmt *ast.CreateTableStmt) (*CreateTableStmt, error) {
	out := &CreateTableStmt{
		Table:       stmt.Table.Name.String(),
		IfNotExists: stmt.IfNotExists,
	}
	for _, col := range stmt.Cols {
		cd := ColumnDef{
			Name:     col.Name.Name.String(),
			Type:     dataTypeFromTiDB(col.Tp.String()),
			Nullable: true,
		}
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull:
				cd.Nullable = false
			case ast.ColumnOptionPrimaryKey:
				cd.Nullable = false
				cd.PrimaryKey = true
				cd.Unique = true
			case ast.ColumnOptionUniqKey:
				cd.Unique = true
			case ast.ColumnOptionDefaultValue:
				if opt.Expr != nil {
					defExpr, err := convertExpr(opt.Expr)
					if err == nil {
						cd.Default = defExpr
					}
				}
			case ast.ColumnOptionReference:
				if opt.Refer != nil && opt.Refer.Table != nil && len(opt.Refer.IndexPartSpecifications) > 0 {
					cd.References = &value.ForeignKey{
						Table:  opt.Refer.Table.Name.String(),
						Column: opt.Refer.IndexPartSpecifications[0].Column.Name.String(),
					}
				}
			}
		}
		out.Columns = append(out.Columns, cd)
	}
	for _, cons := range stmt.Constraints {
		if cons.Tp == ast.ConstraintPrimaryKey {
			for _, key := range cons.Keys {
				name := key.Column.Name.String()
				for i := range out.Columns {
					if out.Columns[i].Name == name {
						out.Columns[i].PrimaryKey = true
						out.Columns[i].Nullable = false
						out.Columns[i].Unique = true
					}
				}
			}
		}
	}
	return out, nil
}

func convertDropTable(stmt *ast.DropTableStmt) *DropTableStmt {
	out := &DropTableStmt{IfExists: stmt.IfExists}
	if len(stmt.Tables) > 0 {
		out.Table = stmt.Tables[0].Name.String()
	}
	return out
}

func convertCreateIndex(stmt *ast.CreateIndexStmt) (*CreateIndexStmt, error) {
	out := &CreateIndexStmt{
		Name:        stmt.IndexName,
		IfNotExists: stmt.IfNotExists,
		Unique:      stmt.KeyType == ast.IndexKeyTypeUnique,
	}
	if stmt.Table != nil {
		out.Table = stmt.Table.Name.String()
	}
	for _, spec := range stmt.IndexPartSpecifications {
		if spec.Column == nil {
			return nil, &UnsupportedError{What: "expression index column"}
		}
		out.Columns = append(out.Columns, spec.Column.Name.String())
	}
	if len(out.Columns) == 0 {
		return nil, &UnsupportedError{What: "CREATE INDEX with no columns"}
	}
	return out, nil
}

func convertDropIndex(stmt *ast.DropIndexStmt) *DropIndexStmt {
	out := &DropIndexStmt{Name: stmt.IndexName, IfExists: stmt.IfExists}
	if stmt.Table != nil {
		out.Table = stmt.Table.Name.String()
	}
	return out
}
