package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/value"
)

func usersSchema() value.TableSchema {
	cols := []value.Column{
		value.NewColumn("id", value.Integer()).AsPrimaryKey(),
		value.NewColumn("name", value.Text()),
	}
	return value.NewTableSchema("users", value.NewSchema(cols))
}

func TestCatalog_New_IsEmpty(t *testing.T) {
	c := New()
	assert.Empty(t, c.TableNames())
	assert.False(t, c.HasTable("users"))
}

func TestCatalog_WithTable_RegistersAndReplaces(t *testing.T) {
	c := New()
	c1 := c.WithTable(usersSchema())
	require.True(t, c1.HasTable("users"))

	got, err := c1.GetTable("users")
	require.NoError(t, err)
	assert.Equal(t, "users", got.Name)

	replacement := usersSchema().WithIndex("id")
	c2 := c1.WithTable(replacement)
	got2, err := c2.GetTable("users")
	require.NoError(t, err)
	assert.True(t, got2.IsIndexed("id"))
}

func TestCatalog_WithTable_IsCopyOnWrite(t *testing.T) {
	base := New()
	derived := base.WithTable(usersSchema())

	// The original snapshot must be unaffected by later mutation of derived.
	assert.False(t, base.HasTable("users"))
	assert.True(t, derived.HasTable("users"))

	other := value.NewTableSchema("orders", value.NewSchema(nil))
	derived2 := derived.WithTable(other)

	assert.False(t, derived.HasTable("orders"), "earlier snapshot must not see a later WithTable call")
	assert.True(t, derived2.HasTable("orders"))
	assert.True(t, derived2.HasTable("users"), "unrelated table must survive the copy")
}

func TestCatalog_GetTable_NotFound(t *testing.T) {
	c := New()
	_, err := c.GetTable("missing")
	require.Error(t, err)
	var nf *TableNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCatalog_WithoutTable_RemovesAndKeepsOldSnapshot(t *testing.T) {
	c := New().WithTable(usersSchema())
	c2 := c.WithoutTable("users")

	assert.True(t, c.HasTable("users"), "old snapshot keeps the table")
	assert.False(t, c2.HasTable("users"))
}

func TestCatalog_WithoutTable_OfUnknownNameIsNoop(t *testing.T) {
	c := New()
	c2 := c.WithoutTable("nope")
	assert.False(t, c2.HasTable("nope"))
	assert.Empty(t, c2.TableNames())
}

func TestCatalog_WithView_RegistersAndIsCopyOnWrite(t *testing.T) {
	c := New()
	v := View{Query: "SELECT 1", ColumnAliases: []string{"one"}}
	c2 := c.WithView("v1", v)

	_, ok := c.GetView("v1")
	assert.False(t, ok, "old snapshot must not see a later WithView call")

	got, ok := c2.GetView("v1")
	require.True(t, ok)
	assert.Equal(t, []string{"one"}, got.ColumnAliases)
}

func TestCatalog_WithView_DoesNotDisturbTables(t *testing.T) {
	c := New().WithTable(usersSchema())
	c2 := c.WithView("v1", View{Query: "SELECT 1"})

	assert.True(t, c2.HasTable("users"), "view mutation must share the untouched table map")
	got, err := c2.GetTable("users")
	require.NoError(t, err)
	assert.Equal(t, "users", got.Name)
}

func TestCatalog_TableNames_ListsAll(t *testing.T) {
	c := New().WithTable(usersSchema()).WithTable(value.NewTableSchema("orders", value.NewSchema(nil)))
	names := c.TableNames()
	assert.ElementsMatch(t, []string{"users", "orders"}, names)
}
