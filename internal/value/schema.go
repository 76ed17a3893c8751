package value

import "strings"

// Schema is an ordered list of columns with a name-lookup cache resolving
// both "table.col" and unqualified references.
type Schema struct {
	Columns []Column

	byExact       map[string]int
	byUnqualified map[string][]int // index list; len>1 means ambiguous
}

// NewSchema builds a Schema and its lookup cache.
func NewSchema(cols []Column) Schema {
	s := Schema{Columns: cols}
	s.rebuildCache()
	return s
}

func (s *Schema) rebuildCache() {
	s.byExact = make(map[string]int, len(s.Columns))
	s.byUnqualified = make(map[string][]int, len(s.Columns))
	for i, c := range s.Columns {
		s.byExact[c.Name] = i
		unq := unqualifiedName(c.Name)
		s.byUnqualified[unq] = append(s.byUnqualified[unq], i)
	}
}

func unqualifiedName(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// FindColumnIndex resolves name against either an exact qualified match or
// an unambiguous unqualified match. Ambiguous unqualified names return
// (0, false).
func (s Schema) FindColumnIndex(name string) (int, bool) {
	if s.byExact == nil {
		s.rebuildCache()
	}
	if idx, ok := s.byExact[name]; ok {
		return idx, true
	}
	if idxs, ok := s.byUnqualified[unqualifiedName(name)]; ok && len(idxs) == 1 {
		return idxs[0], true
	}
	return 0, false
}

// Merge concatenates left and right's columns, used for join schemas.
func Merge(left, right Schema) Schema {
	cols := make([]Column, 0, len(left.Columns)+len(right.Columns))
	cols = append(cols, left.Columns...)
	cols = append(cols, right.Columns...)
	return NewSchema(cols)
}

// QualifyColumns returns a copy of s whose unqualified column names are
// prefixed with "alias.".
func (s Schema) QualifyColumns(alias string) Schema {
	cols := make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		name := c.Name
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		c.Name = alias + "." + name
		cols[i] = c
	}
	return NewSchema(cols)
}

// ColumnNames returns the plain column name list, in order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// TableSchema is a named Schema plus which columns carry a secondary index.
// The Catalog owns TableSchemas immutably and copy-on-write.
type TableSchema struct {
	Name          string
	Schema        Schema
	IndexedColumns map[string]bool
}

// NewTableSchema builds a TableSchema with no indexes.
func NewTableSchema(name string, schema Schema) TableSchema {
	return TableSchema{Name: name, Schema: schema, IndexedColumns: map[string]bool{}}
}

// WithIndex returns a copy of t with column marked as indexed.
func (t TableSchema) WithIndex(column string) TableSchema {
	idx := make(map[string]bool, len(t.IndexedColumns)+1)
	for k, v := range t.IndexedColumns {
		idx[k] = v
	}
	idx[column] = true
	t.IndexedColumns = idx
	return t
}

func (t TableSchema) IsIndexed(column string) bool {
	return t.IndexedColumns[column]
}

// Row is an ordered list of Values; its length always equals the owning
// schema's column count.
type Row []Value

// Clone returns a deep-ish copy (Values are themselves immutable).
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Validate checks each value in r against the corresponding schema column.
func (r Row) Validate(s Schema) error {
	if len(r) != len(s.Columns) {
		return &RowLengthError{Expected: len(s.Columns), Got: len(r)}
	}
	for i, v := range r {
		if err := s.Columns[i].Validate(v); err != nil {
			return err
		}
	}
	return nil
}

// RowLengthError signals a row whose arity doesn't match its schema.
type RowLengthError struct {
	Expected int
	Got      int
}

func (e *RowLengthError) Error() string {
	return "row has wrong number of values for schema"
}
