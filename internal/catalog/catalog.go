// Package catalog holds the immutable, copy-on-write registry of table
// schemas and CTE views.
package catalog

import (
	"fmt"

	"github.com/kasuganosora/memdb/internal/value"
)

// View is a CTE registered purely as a rewriting aid for the planner: it
// carries whatever parsed query representation the planner produces
// (kept as `any` here so catalog has no dependency on the planner/parser
// packages) plus an optional column-alias list.
type View struct {
	Query          any
	ColumnAliases []string
}

// Catalog is an immutable snapshot of table schemas and views. All mutating
// operations return a new Catalog; callers hold a cheap reference to a
// snapshot and never lock the whole store.
type Catalog struct {
	tables map[string]value.TableSchema
	views  map[string]View
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{tables: map[string]value.TableSchema{}, views: map[string]View{}}
}

// TableNotFoundError is returned by GetTable for unknown tables.
type TableNotFoundError struct{ Name string }

func (e *TableNotFoundError) Error() string { return fmt.Sprintf("table %q not found", e.Name) }

// TableExistsError is returned when a caller tries to publish a duplicate.
type TableExistsError struct{ Name string }

func (e *TableExistsError) Error() string { return fmt.Sprintf("table %q already exists", e.Name) }

// GetTable returns the named table's schema.
func (c *Catalog) GetTable(name string) (value.TableSchema, error) {
	t, ok := c.tables[name]
	if !ok {
		return value.TableSchema{}, &TableNotFoundError{Name: name}
	}
	return t, nil
}

// HasTable reports whether name is registered.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// WithTable returns a new Catalog with schema registered (or replaced).
func (c *Catalog) WithTable(schema value.TableSchema) *Catalog {
	next := c.shallowCloneTables()
	next.tables[schema.Name] = schema
	return next
}

// WithoutTable returns a new Catalog with name removed.
func (c *Catalog) WithoutTable(name string) *Catalog {
	next := c.shallowCloneTables()
	delete(next.tables, name)
	return next
}

// WithView registers (or replaces) a CTE view definition.
func (c *Catalog) WithView(name string, v View) *Catalog {
	next := c.shallowCloneViews()
	next.views[name] = v
	return next
}

// GetView looks up a registered view.
func (c *Catalog) GetView(name string) (View, bool) {
	v, ok := c.views[name]
	return v, ok
}

// TableNames lists all registered table names (unordered).
func (c *Catalog) TableNames() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	return names
}

func (c *Catalog) shallowCloneTables() *Catalog {
	tables := make(map[string]value.TableSchema, len(c.tables)+1)
	for k, v := range c.tables {
		tables[k] = v
	}
	views := c.views // views map is untouched, share the reference
	return &Catalog{tables: tables, views: views}
}

func (c *Catalog) shallowCloneViews() *Catalog {
	views := make(map[string]View, len(c.views)+1)
	for k, v := range c.views {
		views[k] = v
	}
	return &Catalog{tables: c.tables, views: views}
}
