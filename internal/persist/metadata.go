// Package persist implements the persisted-object contract: a typed record
// backed by a table row with seven reserved columns ahead of its business
// fields, optimistic-concurrency save/delete, Draft/Patch/Command mutation,
// and schema migration against a stored per-table version.
package persist

import (
	"time"

	"github.com/kasuganosora/memdb/internal/dynschema"
	"github.com/kasuganosora/memdb/internal/value"
)

// Metadata is the reserved envelope every persisted row carries, in the
// fixed column order the generated DDL uses.
type Metadata struct {
	ID            string
	Version       int64
	SchemaVersion int64
	TouchCount    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastTouchAt   time.Time
}

func (m Metadata) toValues() map[string]value.Value {
	return map[string]value.Value{
		"__persist_id":     value.NewText(m.ID),
		"__version":        value.NewInteger(m.Version),
		"__schema_version": value.NewInteger(m.SchemaVersion),
		"__touch_count":    value.NewInteger(m.TouchCount),
		"__created_at":     value.NewTimestamp(m.CreatedAt),
		"__updated_at":     value.NewTimestamp(m.UpdatedAt),
		"__last_touch_at":  value.NewTimestamp(m.LastTouchAt),
	}
}

// reservedColumns returns the seven reserved columns in the fixed order
// spec.md 4.10 names, __persist_id first as the table's primary key.
func reservedColumns() []value.Column {
	return []value.Column{
		value.NewColumn("__persist_id", value.Text()).AsPrimaryKey(),
		value.NewColumn("__version", value.Integer()).AsNotNull(),
		value.NewColumn("__schema_version", value.Integer()).AsNotNull(),
		value.NewColumn("__touch_count", value.Integer()).AsNotNull(),
		value.NewColumn("__created_at", value.Timestamp()).AsNotNull(),
		value.NewColumn("__updated_at", value.Timestamp()).AsNotNull(),
		value.NewColumn("__last_touch_at", value.Timestamp()).AsNotNull(),
	}
}

// BuildTableSchema prepends the reserved columns to ds's business fields,
// the physical layout every persisted type's backing table uses.
func BuildTableSchema(ds dynschema.DynamicSchema) value.Schema {
	cols := reservedColumns()
	for _, f := range ds.Fields {
		col := value.NewColumn(f.Name, f.Type)
		if !f.Nullable {
			col = col.AsNotNull()
		}
		cols = append(cols, col)
	}
	return value.NewSchema(cols)
}
