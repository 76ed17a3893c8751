package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/catalog"
	"github.com/kasuganosora/memdb/internal/mvcc"
	"github.com/kasuganosora/memdb/internal/planner"
	"github.com/kasuganosora/memdb/internal/sqlparser"
	"github.com/kasuganosora/memdb/internal/storage"
	"github.com/kasuganosora/memdb/internal/value"
)

func usersSchema() value.TableSchema {
	cols := []value.Column{
		value.NewColumn("id", value.Integer()).AsPrimaryKey(),
		value.NewColumn("name", value.Text()),
		value.NewColumn("age", value.Integer()),
	}
	return value.NewTableSchema("users", value.NewSchema(cols)).WithIndex("id")
}

func newTestExecutor(t *testing.T) (*Executor, *mvcc.Manager) {
	t.Helper()
	ts := usersSchema()
	store := storage.NewStore(mvcc.NewManager())
	require.NoError(t, store.CreateTable(ts))
	require.NoError(t, store.CreateIndex("pk_users_id", "users", []string{"id"}, true))

	cat := catalog.New().WithTable(ts)
	exec := New(store, cat, nil)
	return exec, store.TxManager()
}

func run(t *testing.T, exec *Executor, xid mvcc.XID, sql string) *Statement {
	t.Helper()
	p := sqlparser.New()
	stmt, err := p.ParseOne(sql)
	require.NoError(t, err)
	return &Statement{exec: exec, xid: xid, stmt: stmt}
}

// Statement is a tiny test-only helper gluing parse -> plan -> execute so
// each test case reads as one line of SQL instead of three calls.
type Statement struct {
	exec *Executor
	xid  mvcc.XID
	stmt *sqlparser.Statement
}

func (s *Statement) query(t *testing.T) *QueryResult {
	t.Helper()
	plan, err := planner.Build(s.stmt, s.exec.Catalog)
	require.NoError(t, err)
	res, err := s.exec.ExecuteQuery(context.Background(), plan, s.xid)
	require.NoError(t, err)
	return res
}

func (s *Statement) exec_(t *testing.T) *ExecResult {
	t.Helper()
	plan, err := planner.Build(s.stmt, s.exec.Catalog)
	require.NoError(t, err)
	res, err := s.exec.ExecuteStatement(context.Background(), plan, s.xid)
	require.NoError(t, err)
	return res
}

func TestExecutor_InsertSelectFilter(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)`).exec_(t)
	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (2, 'bob', 40)`).exec_(t)

	res := run(t, exec, xid, `SELECT name FROM users WHERE age > 35`).query(t)
	require.Len(t, res.Rows, 1)
	s, _ := res.Rows[0][0].AsString()
	require.Equal(t, "bob", s)
}

func TestExecutor_IndexEqualityScan(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)`).exec_(t)
	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (2, 'bob', 40)`).exec_(t)

	res := run(t, exec, xid, `SELECT name FROM users WHERE id = 2`).query(t)
	require.Len(t, res.Rows, 1)
	s, _ := res.Rows[0][0].AsString()
	require.Equal(t, "bob", s)
}

func TestExecutor_UpdateAndDelete(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)`).exec_(t)
	upd := run(t, exec, xid, `UPDATE users SET age = age + 1 WHERE id = 1`).exec_(t)
	require.EqualValues(t, 1, upd.RowsAffected)

	res := run(t, exec, xid, `SELECT age FROM users WHERE id = 1`).query(t)
	age, _ := res.Rows[0][0].AsInt64()
	require.EqualValues(t, 31, age)

	del := run(t, exec, xid, `DELETE FROM users WHERE id = 1`).exec_(t)
	require.EqualValues(t, 1, del.RowsAffected)

	res = run(t, exec, xid, `SELECT id FROM users`).query(t)
	require.Empty(t, res.Rows)
}

func TestExecutor_AggregateGroupBy(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (1, 'alice', 30)`).exec_(t)
	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (2, 'alice', 40)`).exec_(t)
	run(t, exec, xid, `INSERT INTO users (id, name, age) VALUES (3, 'bob', 50)`).exec_(t)

	res := run(t, exec, xid, `SELECT name, COUNT(*), SUM(age) FROM users GROUP BY name ORDER BY name`).query(t)
	require.Len(t, res.Rows, 2)

	n0, _ := res.Rows[0][0].AsString()
	c0, _ := res.Rows[0][1].AsInt64()
	sum0, _ := res.Rows[0][2].AsInt64()
	require.Equal(t, "alice", n0)
	require.EqualValues(t, 2, c0)
	require.EqualValues(t, 70, sum0)
}

func TestExecutor_CreateTableThenInsert(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	ddl := run(t, exec, xid, `CREATE TABLE orders (id INT PRIMARY KEY, total FLOAT)`).exec_(t)
	require.NotNil(t, ddl.CatalogAfter)
	require.True(t, ddl.CatalogAfter.HasTable("orders"))

	run(t, exec, xid, `INSERT INTO orders (id, total) VALUES (1, 9.5)`).exec_(t)
	res := run(t, exec, xid, `SELECT total FROM orders WHERE id = 1`).query(t)
	require.Len(t, res.Rows, 1)
	f, _ := res.Rows[0][0].AsFloat64()
	require.InDelta(t, 9.5, f, 0.0001)
}

func TestExecutor_RecursiveCTE(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	res := run(t, exec, xid, `
		WITH RECURSIVE ladder(n) AS (
			SELECT 1
			UNION ALL
			SELECT n + 1 FROM ladder WHERE n < 5
		)
		SELECT n FROM ladder ORDER BY n
	`).query(t)

	require.Len(t, res.Rows, 5)
	first, _ := res.Rows[0][0].AsInt64()
	last, _ := res.Rows[len(res.Rows)-1][0].AsInt64()
	require.EqualValues(t, 1, first)
	require.EqualValues(t, 5, last)
}

func TestExecutor_Explain(t *testing.T) {
	exec, mgr := newTestExecutor(t)
	xid := mgr.Begin(mvcc.ReadCommitted)

	res := run(t, exec, xid, `EXPLAIN SELECT name FROM users WHERE id = 1`).query(t)
	require.Len(t, res.Rows, 1)
	text, _ := res.Rows[0][0].AsString()
	require.Contains(t, text, "IndexScan")
}
