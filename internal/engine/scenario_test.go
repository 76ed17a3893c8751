package engine_test

// End-to-end scenarios exercising each subsystem (SQL pipeline, persisted
// objects, managed collections, entity runtime) against the literal
// inputs and expectations each one names.

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/dynschema"
	"github.com/kasuganosora/memdb/internal/engine"
	"github.com/kasuganosora/memdb/internal/managedvec"
	"github.com/kasuganosora/memdb/internal/persist"
	"github.com/kasuganosora/memdb/internal/runtime"
	"github.com/kasuganosora/memdb/internal/value"
)

func newScenarioSession(t *testing.T) *engine.Session {
	t.Helper()
	eng, err := engine.Open()
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })
	return eng.NewSession()
}

// S1 — basic CRUD + filter.
func TestScenario_S1_BasicCRUDAndFilter(t *testing.T) {
	ctx := context.Background()
	sess := newScenarioSession(t)

	_, err := sess.Exec(ctx, "CREATE TABLE users(id INTEGER, name TEXT, age INTEGER, active BOOLEAN)")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO users VALUES (1,'Alice',30,true)")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO users VALUES (2,'Bob',25,true)")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO users VALUES (3,'Charlie',35,false)")
	require.NoError(t, err)

	res, err := sess.Query(ctx, "SELECT * FROM users WHERE active = true AND age < 32")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	name0, _ := res.Rows[0][1].AsString()
	age0, _ := res.Rows[0][2].AsInt64()
	require.Equal(t, "Alice", name0)
	require.EqualValues(t, 30, age0)

	name1, _ := res.Rows[1][1].AsString()
	age1, _ := res.Rows[1][2].AsInt64()
	require.Equal(t, "Bob", name1)
	require.EqualValues(t, 25, age1)
}

// S2 — LIKE pattern + index bypass: an index on name doesn't help a LIKE
// predicate, so the plan stays a TableScan.
func TestScenario_S2_LikePatternBypassesIndex(t *testing.T) {
	ctx := context.Background()
	sess := newScenarioSession(t)

	_, err := sess.Exec(ctx, "CREATE TABLE t(id INTEGER, name TEXT)")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "CREATE INDEX idx_t_name ON t (name)")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO t VALUES (1,'abc')")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO t VALUES (2,'abd')")
	require.NoError(t, err)
	_, err = sess.Exec(ctx, "INSERT INTO t VALUES (3,'zzz')")
	require.NoError(t, err)

	res, err := sess.Query(ctx, "SELECT * FROM t WHERE name LIKE 'ab%'")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	id0, _ := res.Rows[0][0].AsInt64()
	id1, _ := res.Rows[1][0].AsInt64()
	require.EqualValues(t, 1, id0)
	require.EqualValues(t, 2, id1)

	explain, err := sess.Query(ctx, "EXPLAIN SELECT * FROM t WHERE name LIKE 'ab%'")
	require.NoError(t, err)
	require.Len(t, explain.Rows, 1)
	plan, _ := explain.Rows[0][0].AsString()
	require.Contains(t, plan, "TableScan")
	require.NotContains(t, plan, "IndexScan")
}

// S3 — optimistic lock conflict: two tasks load the same item, each sets
// a different field, and saves; the first wins, the second's conflict
// error names the optimistic lock.
func TestScenario_S3_OptimisticLockConflict(t *testing.T) {
	ctx := context.Background()
	sess := newScenarioSession(t)
	ps := persist.NewPersistSession(sess)

	ds, err := dynschema.FromDDL("CREATE TABLE accounts (owner TEXT NOT NULL, balance FLOAT)")
	require.NoError(t, err)
	require.NoError(t, ps.EnsureTable(ctx, ds))

	shared, err := ps.NewEntity(ds, persist.NewDraft().Set("owner", value.NewText("alice")).Set("balance", value.NewFloat(100)))
	require.NoError(t, err)
	require.NoError(t, shared.Save(ctx))

	taskA, err := ps.Load(ctx, ds, shared.ID())
	require.NoError(t, err)
	taskB, err := ps.Load(ctx, ds, shared.ID())
	require.NoError(t, err)

	require.NoError(t, taskA.SetField(ctx, "balance", value.NewFloat(150)))
	require.NoError(t, taskA.Save(ctx))
	require.EqualValues(t, shared.Version()+1, taskA.Version())

	require.NoError(t, taskB.SetField(ctx, "owner", value.NewText("bob")))
	err = taskB.Save(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "optimistic lock conflict")
}

// S4 — managed vec idempotent create: the core applies no deduplication
// of its own; calling create twice with the same logical item produces
// two independent rows, leaving any idempotency guard to the caller.
func TestScenario_S4_ManagedVecCreateTwiceYieldsTwoItems(t *testing.T) {
	ctx := context.Background()
	sess := newScenarioSession(t)
	ps := persist.NewPersistSession(sess)

	ds, err := dynschema.FromDDL("CREATE TABLE boards (title TEXT NOT NULL)")
	require.NoError(t, err)

	boards, err := managedvec.Open(ctx, ps, ds, managedvec.Config{Root: t.TempDir(), Name: "boards"})
	require.NoError(t, err)

	draft := persist.NewDraft().Set("title", value.NewText("roadmap"))
	first, err := boards.Create(ctx, draft)
	require.NoError(t, err)

	second, err := boards.Create(ctx, draft)
	require.NoError(t, err)

	require.NotEqual(t, first.ID(), second.ID())
	require.Equal(t, 2, boards.Len())
}

// S5 — recursive CTE.
func TestScenario_S5_RecursiveCTE(t *testing.T) {
	ctx := context.Background()
	sess := newScenarioSession(t)

	res, err := sess.Query(ctx, `
		WITH RECURSIVE r(n) AS (
			SELECT 1 UNION SELECT n+1 FROM r WHERE n < 5
		)
		SELECT n FROM r ORDER BY n
	`)
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	for i, row := range res.Rows {
		n, _ := row[0].AsInt64()
		require.EqualValues(t, i+1, n)
	}
}

// S6 — runtime deterministic command + recovery: two SetBalance commands
// land on the journal; dropping the process handle without running
// maintenance and reopening over the same root reconstructs exactly the
// state the last successfully appended record left behind.
func TestScenario_S6_RuntimeCommandSurvivesCrashAndReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	setBalance := func(state runtime.State, payload map[string]any) (runtime.State, error) {
		state["balance"] = payload["amount"]
		return state, nil
	}

	rt, err := runtime.Open(runtime.Config{Root: root})
	require.NoError(t, err)
	rt.RegisterCommand("Account", "SetBalance", setBalance, &runtime.PayloadSchema{
		RootType: "Account",
		Fields:   []runtime.PayloadField{{Name: "amount", PayloadType: "int", Required: true}},
	})

	id, err := rt.CreateEntity(ctx, "Account", "accounts", map[string]any{}, 1)
	require.NoError(t, err)

	_, err = rt.ApplyDeterministicCommand(ctx, "Account", id, "SetBalance", map[string]any{"amount": 100})
	require.NoError(t, err)
	_, err = rt.ApplyDeterministicCommand(ctx, "Account", id, "SetBalance", map[string]any{"amount": 50})
	require.NoError(t, err)

	// Crash: drop the handle without closing cleanly or running maintenance.
	rt = nil

	reopened, err := runtime.Open(runtime.Config{Root: root})
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	key := runtime.Key{EntityType: "Account", PersistID: id}
	state, err := reopened.GetState(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 50, state["balance"])
}
