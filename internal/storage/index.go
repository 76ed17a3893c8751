package storage

import (
	"github.com/google/btree"

	"github.com/kasuganosora/memdb/internal/value"
)

type indexEntry struct {
	key   []value.Value
	rowID uint64
}

func sameKey(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func lessEntries(a, b indexEntry) bool {
	for i := range a.key {
		c, err := a.key[i].Compare(b.key[i])
		if err != nil {
			continue
		}
		if c != 0 {
			return c < 0
		}
	}
	return a.rowID < b.rowID
}

// Index is an ordered secondary index over one or more columns, backed by
// a B-tree so both equality lookups and range scans stay logarithmic.
type Index struct {
	Name       string
	Columns    []string
	Unique     bool
	colIndexes []int
	tree       *btree.BTreeG[indexEntry]
}

// NewIndex builds an index over columns, resolving their positions in
// schema once up front.
func NewIndex(name string, schema value.Schema, columns []string, unique bool) (*Index, error) {
	colIndexes := make([]int, len(columns))
	for i, col := range columns {
		idx, ok := schema.FindColumnIndex(col)
		if !ok {
			return nil, &UnknownColumnError{Column: col}
		}
		colIndexes[i] = idx
	}
	return &Index{
		Name:       name,
		Columns:    columns,
		Unique:     unique,
		colIndexes: colIndexes,
		tree:       btree.NewG(32, lessEntries),
	}, nil
}

func (ix *Index) keyFor(row value.Row) []value.Value {
	key := make([]value.Value, len(ix.colIndexes))
	for i, ci := range ix.colIndexes {
		key[i] = row[ci]
	}
	return key
}

// checkUnique reports whether inserting row under rowID would violate a
// unique constraint, without mutating the index. Callers validate every
// affected index this way before committing any of them.
func (ix *Index) checkUnique(row value.Row, rowID uint64) error {
	if !ix.Unique {
		return nil
	}
	key := ix.keyFor(row)
	conflict := false
	ix.tree.AscendGreaterOrEqual(indexEntry{key: key, rowID: 0}, func(e indexEntry) bool {
		if !sameKey(e.key, key) {
			return false
		}
		if e.rowID != rowID {
			conflict = true
		}
		return false
	})
	if conflict {
		return &UniqueViolationError{Index: ix.Name}
	}
	return nil
}

func (ix *Index) insert(row value.Row, rowID uint64) {
	ix.tree.ReplaceOrInsert(indexEntry{key: ix.keyFor(row), rowID: rowID})
}

func (ix *Index) remove(row value.Row, rowID uint64) {
	ix.tree.Delete(indexEntry{key: ix.keyFor(row), rowID: rowID})
}

// Lookup returns the row ids whose index key equals key, in ascending
// row-id order.
func (ix *Index) Lookup(key []value.Value) []uint64 {
	var out []uint64
	ix.tree.AscendGreaterOrEqual(indexEntry{key: key, rowID: 0}, func(e indexEntry) bool {
		if !sameKey(e.key, key) {
			return false
		}
		out = append(out, e.rowID)
		return true
	})
	return out
}

// Range returns row ids whose index key falls in [lo, hi) (nil bound means
// unbounded on that side), in ascending key order.
func (ix *Index) Range(lo, hi []value.Value) []uint64 {
	var out []uint64
	hiEntry := indexEntry{key: hi, rowID: 0}
	visit := func(e indexEntry) bool {
		if hi != nil && !lessEntries(e, hiEntry) {
			return false
		}
		out = append(out, e.rowID)
		return true
	}
	if lo != nil {
		ix.tree.AscendGreaterOrEqual(indexEntry{key: lo, rowID: 0}, visit)
	} else {
		ix.tree.Ascend(visit)
	}
	return out
}
