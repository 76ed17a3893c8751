package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/value"
)

func testCatalog() *catalog.Catalog {
	users := value.NewTableSchema("users", value.NewSchema([]value.Column{
		value.NewColumn("id", value.Integer()),
		value.NewColumn("name", value.Text()),
		value.NewColumn("age", value.Integer()),
	})).WithIndex("id")

	orders := value.NewTableSchema("orders", value.NewSchema([]value.Column{
		value.NewColumn("id", value.Integer()),
		value.NewColumn("user_id", value.Integer()),
		value.NewColumn("total", value.Float()),
	}))

	return catalog.New().WithTable(users).WithTable(orders)
}

func parseOne(t *testing.T, sql string) *sqlparser.Statement {
	t.Helper()
	stmt, err := sqlparser.New().ParseOne(sql)
	require.NoError(t, err)
	return stmt
}

func TestBuild_SimpleSelectWithIndexEquality(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "SELECT id, name FROM users WHERE id = 1")

	plan, err := Build(stmt, cat)
	require.NoError(t, err)

	require.Equal(t, KindProject, plan.Kind)
	filter := plan.Children[0]
	require.Equal(t, KindFilter, filter.Kind)
	scan := filter.Children[0]
	require.Equal(t, KindIndexScan, scan.Kind)
	assert.Equal(t, "id", scan.IndexColumn)
}

func TestBuild_NonIndexedPredicateStaysTableScan(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "SELECT * FROM users WHERE age > 18")

	plan, err := Build(stmt, cat)
	require.NoError(t, err)

	scan := plan.Children[0].Children[0]
	assert.Equal(t, KindTableScan, scan.Kind)
}

func TestBuild_JoinBuildsChildrenAndMergedSchema(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "SELECT * FROM users JOIN orders ON users.id = orders.user_id")

	plan, err := Build(stmt, cat)
	require.NoError(t, err)

	join := plan.Children[0]
	require.Equal(t, KindJoin, join.Kind)
	assert.Len(t, join.Children, 2)
	assert.Equal(t, 6, len(join.Schema.Columns))
}

func TestBuild_AggregateInsertedForGroupBy(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "SELECT user_id, COUNT(id) FROM orders GROUP BY user_id")

	plan, err := Build(stmt, cat)
	require.NoError(t, err)

	agg := plan.Children[0]
	require.Equal(t, KindAggregate, agg.Kind)
	assert.Len(t, agg.Aggregates, 1)
}

func TestBuild_UnknownTable(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "SELECT * FROM ghosts")

	_, err := Build(stmt, cat)
	var ute *UnknownTableError
	assert.ErrorAs(t, err, &ute)
}

func TestBuild_Insert(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "INSERT INTO users (id, name) VALUES (1, 'a')")

	plan, err := Build(stmt, cat)
	require.NoError(t, err)
	assert.Equal(t, KindInsert, plan.Kind)
	assert.Equal(t, []string{"id", "name"}, plan.InsertColumns)
}

func TestBuild_RecursiveCTEProducesFixpointNode(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, `WITH RECURSIVE ladder(n) AS (
		SELECT 1
		UNION ALL
		SELECT n + 1 FROM ladder WHERE n < 5
	) SELECT n FROM ladder`)

	plan, err := Build(stmt, cat)
	require.NoError(t, err)
	require.Equal(t, KindProject, plan.Kind)

	cteScan := plan.Children[0]
	require.Equal(t, KindRecursiveCTE, cteScan.Kind)
	assert.NotNil(t, cteScan.Anchor)
	assert.NotNil(t, cteScan.RecursiveMember)
}

func TestBuild_Explain(t *testing.T) {
	cat := testCatalog()
	stmt := parseOne(t, "EXPLAIN SELECT * FROM users")

	plan, err := Build(stmt, cat)
	require.NoError(t, err)
	require.Equal(t, KindExplain, plan.Kind)
	assert.NotEmpty(t, plan.Explain())
}
