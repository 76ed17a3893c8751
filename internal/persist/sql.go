package persist

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kasuganosora/memdb/internal/value"
)

// sqlColumnType renders a DataType as the DDL keyword internal/sqlparser's
// tidb-grammar adapter maps back onto it (see dataTypeFromTiDB). UUID and
// Array have no DDL keyword of their own in that grammar, so both fall
// through to TEXT; DataType.IsCompatible already accepts a Text value for
// either kind of column.
func sqlColumnType(d value.DataType) string {
	switch d.Kind() {
	case value.DTInteger:
		return "INTEGER"
	case value.DTFloat:
		return "FLOAT"
	case value.DTBoolean:
		return "BOOLEAN"
	case value.DTTimestamp:
		return "TIMESTAMP"
	case value.DTDate:
		return "DATE"
	case value.DTJSON:
		return "JSON"
	default:
		return "TEXT"
	}
}

// sqlLiteral renders v as SQL text the engine's parser reads back as the
// same value.Value. There is no bind-parameter ($N) support anywhere in
// this module's SQL layer (sqlparser/planner/eval never reference one), so
// every generated statement embeds literal values directly rather than
// binding placeholders — see DESIGN.md's persist entry for the full
// reasoning. Integer/Float/Boolean/Null render as bare SQL literals;
// everything else (Text, Timestamp, Date, UUID, JSON) renders as a quoted,
// escaped string, since valueFromDatum hands every quoted literal back as
// a Text value and IsCompatible explicitly allows Text into those column
// kinds.
func sqlLiteral(v value.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Kind() {
	case value.KindInteger:
		i, _ := v.AsInt64()
		return strconv.FormatInt(i, 10)
	case value.KindFloat:
		f, _ := v.AsFloat64()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case value.KindBoolean:
		if v.AsBool() {
			return "TRUE"
		}
		return "FALSE"
	default:
		return "'" + strings.ReplaceAll(v.String(), "'", "''") + "'"
	}
}

func createTableSQL(table string, schema value.Schema) string {
	parts := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		def := c.Name + " " + sqlColumnType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		if c.PrimaryKey {
			def += " PRIMARY KEY"
		}
		parts[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(parts, ", "))
}

func createIndexSQL(name, table string, columns []string, unique bool) string {
	kw := "INDEX"
	if unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s(%s)", kw, name, table, strings.Join(columns, ", "))
}

// valuesRow resolves schema's columns, in order, against values, defaulting
// anything absent to NULL (valid only for nullable columns — a missing
// NOT NULL column is a caller bug the engine's own NOT NULL check catches).
func valuesRow(schema value.Schema, values map[string]value.Value) []value.Value {
	out := make([]value.Value, len(schema.Columns))
	for i, c := range schema.Columns {
		if v, ok := values[c.Name]; ok {
			out[i] = v
		} else {
			out[i] = value.Null()
		}
	}
	return out
}

func insertSQL(table string, schema value.Schema, values map[string]value.Value) string {
	names := make([]string, len(schema.Columns))
	lits := make([]string, len(schema.Columns))
	row := valuesRow(schema, values)
	for i, c := range schema.Columns {
		names[i] = c.Name
		lits[i] = sqlLiteral(row[i])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(lits, ", "))
}

// updateSQL sets every column but __persist_id (the primary key never
// changes) and guards the write with the optimistic-lock predicate spec.md
// 4.10 requires: WHERE __persist_id=? AND __version=expectedVersion.
func updateSQL(table string, schema value.Schema, values map[string]value.Value, persistID string, expectedVersion int64) string {
	sets := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		if c.Name == "__persist_id" {
			continue
		}
		v, ok := values[c.Name]
		if !ok {
			v = value.Null()
		}
		sets = append(sets, c.Name+" = "+sqlLiteral(v))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE __persist_id = %s AND __version = %d",
		table, strings.Join(sets, ", "), sqlLiteral(value.NewText(persistID)), expectedVersion)
}

func selectByIDSQL(table, persistID string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE __persist_id = %s", table, sqlLiteral(value.NewText(persistID)))
}

func deleteSQL(table, persistID string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE __persist_id = %s", table, sqlLiteral(value.NewText(persistID)))
}
