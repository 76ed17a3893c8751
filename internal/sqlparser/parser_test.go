package sqlparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_CreateTable(t *testing.T) {
	p := New()
	stmt, err := p.ParseOne("CREATE TABLE users (id INT PRIMARY KEY, name VARCHAR(64) NOT NULL, score FLOAT)")
	require.NoError(t, err)
	require.Equal(t, StmtCreateTable, stmt.Kind)
	require.Len(t, stmt.CreateTable.Columns, 3)
	assert.Equal(t, "users", stmt.CreateTable.Table)
	assert.True(t, stmt.CreateTable.Columns[0].PrimaryKey)
	assert.False(t, stmt.CreateTable.Columns[1].Nullable)
}

func TestParser_InsertValues(t *testing.T) {
	p := New()
	stmt, err := p.ParseOne("INSERT INTO users (id, name) VALUES (1, 'alice')")
	require.NoError(t, err)
	require.Equal(t, StmtInsert, stmt.Kind)
	assert.Equal(t, "users", stmt.Insert.Table)
	require.Len(t, stmt.Insert.Values, 1)
	require.Len(t, stmt.Insert.Values[0], 2)
	i, ok := stmt.Insert.Values[0][0].Literal.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(1), i)
}

func TestParser_SelectWhereLike(t *testing.T) {
	p := New()
	stmt, err := p.ParseOne("SELECT id, name FROM users WHERE name LIKE 'al%' ORDER BY id DESC LIMIT 10")
	require.NoError(t, err)
	require.Equal(t, StmtSelect, stmt.Kind)
	sel := stmt.Select
	require.Len(t, sel.Columns, 2)
	require.NotNil(t, sel.Where)
	assert.Equal(t, ExprLike, sel.Where.Kind)
	require.Len(t, sel.OrderBy, 1)
	assert.True(t, sel.OrderBy[0].Desc)
	require.NotNil(t, sel.Limit)
	assert.Equal(t, int64(10), *sel.Limit)
}

func TestParser_SelectJoin(t *testing.T) {
	p := New()
	stmt, err := p.ParseOne("SELECT o.id FROM orders o JOIN users u ON o.user_id = u.id WHERE u.name = 'bob'")
	require.NoError(t, err)
	sel := stmt.Select
	require.NotNil(t, sel.From)
	assert.Equal(t, "orders", sel.From.Table)
	require.Len(t, sel.From.Joins, 1)
	assert.Equal(t, "users", sel.From.Joins[0].Table)
	assert.Equal(t, JoinInner, sel.From.Joins[0].Type)
	require.NotNil(t, sel.From.Joins[0].On)
}

func TestParser_UpdateAndDelete(t *testing.T) {
	p := New()
	upd, err := p.ParseOne("UPDATE users SET name = 'carol' WHERE id = 1")
	require.NoError(t, err)
	require.Equal(t, StmtUpdate, upd.Kind)
	require.Len(t, upd.Update.Set, 1)
	assert.Equal(t, "name", upd.Update.Set[0].Column)

	del, err := p.ParseOne("DELETE FROM users WHERE id = 1")
	require.NoError(t, err)
	require.Equal(t, StmtDelete, del.Kind)
	assert.Equal(t, "users", del.Delete.Table)
}

func TestParser_CreateIndex(t *testing.T) {
	p := New()
	stmt, err := p.ParseOne("CREATE UNIQUE INDEX idx_users_id ON users (id)")
	require.NoError(t, err)
	require.Equal(t, StmtCreateIndex, stmt.Kind)
	assert.True(t, stmt.CreateIndex.Unique)
	assert.Equal(t, []string{"id"}, stmt.CreateIndex.Columns)
}

func TestParser_TransactionControl(t *testing.T) {
	p := New()
	for sql, kind := range map[string]StmtKind{
		"BEGIN":    StmtBegin,
		"COMMIT":   StmtCommit,
		"ROLLBACK": StmtRollback,
	} {
		stmt, err := p.ParseOne(sql)
		require.NoError(t, err)
		assert.Equal(t, kind, stmt.Kind)
	}
}

func TestParser_RecursiveCTE(t *testing.T) {
	p := New()
	stmt, err := p.ParseOne(`WITH RECURSIVE tree AS (
		SELECT id, parent_id FROM nodes WHERE parent_id IS NULL
		UNION ALL
		SELECT n.id, n.parent_id FROM nodes n JOIN tree t ON n.parent_id = t.id
	) SELECT * FROM tree`)
	require.NoError(t, err)
	require.Len(t, stmt.Select.CTEs, 1)
	cte := stmt.Select.CTEs[0]
	assert.Equal(t, "tree", cte.Name)
	assert.True(t, cte.Recursive)
	require.NotNil(t, cte.Anchor)
	require.NotNil(t, cte.RecursiveMember)
}
