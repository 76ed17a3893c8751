package runtime

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestRuntime(t *testing.T, mutate func(*Config)) *Runtime {
	t.Helper()
	cfg := Config{Root: t.TempDir(), MaxAttempts: 3, BackoffInitial: time.Millisecond, BackoffMax: 5 * time.Millisecond, AcquireTimeout: time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestCreateEntityAndGetState(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, nil)

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)

	state, err := rt.GetState(ctx, Key{EntityType: "widget", PersistID: id})
	require.NoError(t, err)
	require.Equal(t, "gizmo", state["name"])

	_, err = rt.GetState(ctx, Key{EntityType: "widget", PersistID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEntity(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, nil)

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)

	key := Key{EntityType: "widget", PersistID: id}
	require.NoError(t, rt.DeleteEntity(ctx, key, "user_request"))
	_, err = rt.GetState(ctx, key)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestApplyDeterministicCommand_ValidatesPayload(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, nil)

	rt.RegisterCommand("widget", "SetWeight", func(state State, payload map[string]any) (State, error) {
		state["weight"] = payload["weight"]
		return state, nil
	}, &PayloadSchema{
		RootType: "widget",
		Fields:   []PayloadField{{Name: "weight", PayloadType: "float", Required: true}},
	})

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)

	_, err = rt.ApplyDeterministicCommand(ctx, "widget", id, "SetWeight", map[string]any{})
	require.Error(t, err, "missing required field must fail validation")

	state, err := rt.ApplyDeterministicCommand(ctx, "widget", id, "SetWeight", map[string]any{"weight": 2.5})
	require.NoError(t, err)
	require.Equal(t, 2.5, state["weight"])
}

func TestApplyDeterministicCommand_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, nil)

	attempts := 0
	rt.RegisterCommand("widget", "Flaky", func(state State, payload map[string]any) (State, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient failure")
		}
		state["touched"] = true
		return state, nil
	}, nil)

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{}, 1)
	require.NoError(t, err)

	state, err := rt.ApplyDeterministicCommand(ctx, "widget", id, "Flaky", nil)
	require.NoError(t, err)
	require.Equal(t, true, state["touched"])
	require.Equal(t, 2, attempts)
}

func TestApplyDeterministicCommand_ExhaustsRetriesAndRestoresEntity(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, nil)

	rt.RegisterCommand("widget", "AlwaysFails", func(state State, payload map[string]any) (State, error) {
		return nil, errors.New("permanent failure")
	}, nil)

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)

	_, err = rt.ApplyDeterministicCommand(ctx, "widget", id, "AlwaysFails", nil)
	require.Error(t, err)

	state, err := rt.GetState(ctx, Key{EntityType: "widget", PersistID: id})
	require.NoError(t, err)
	require.Equal(t, "gizmo", state["name"])
}

func TestInvokeRuntimeClosure_NotRetried(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, nil)

	calls := 0
	rt.RegisterClosure("widget", "Randomize", func(state State, args map[string]any) (State, error) {
		calls++
		return nil, errors.New("closure failed")
	})

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{}, 1)
	require.NoError(t, err)

	_, err = rt.InvokeRuntimeClosure(ctx, "widget", id, "Randomize", nil)
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestMaintain_PassivatesAndResurrects(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, func(cfg *Config) {
		cfg.PassivateAfter = time.Millisecond
		cfg.GCAfter = time.Hour
	})

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	report, err := rt.Maintain(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, report.Passivated)

	state, err := rt.GetState(ctx, Key{EntityType: "widget", PersistID: id})
	require.NoError(t, err)
	require.Equal(t, "gizmo", state["name"])

	report, err = rt.Maintain(time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, report.ResurrectedSinceLastReport)
}

func TestMaintain_GCDeletesColdEntities(t *testing.T) {
	ctx := context.Background()
	rt := openTestRuntime(t, func(cfg *Config) {
		cfg.PassivateAfter = time.Millisecond
		cfg.GCAfter = time.Millisecond
	})

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{}, 1)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	report, err := rt.Maintain(time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, report.GCDeleted)

	time.Sleep(5 * time.Millisecond)
	report, err = rt.Maintain(time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, report.GCDeleted)

	_, err = rt.GetState(ctx, Key{EntityType: "widget", PersistID: id})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotAndRecoveryAcrossOpen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	rt := openTestRuntime(t, func(cfg *Config) { cfg.Root = root })
	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)
	require.NoError(t, rt.Snapshot())
	require.FileExists(t, filepath.Join(root, "runtime_snapshot.json"))

	id2, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "sprocket"}, 1)
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	reopened, err := Open(Config{Root: root})
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	s1, err := reopened.GetState(ctx, Key{EntityType: "widget", PersistID: id})
	require.NoError(t, err)
	require.Equal(t, "gizmo", s1["name"])

	s2, err := reopened.GetState(ctx, Key{EntityType: "widget", PersistID: id2})
	require.NoError(t, err)
	require.Equal(t, "sprocket", s2["name"])
}

func TestReplication_SyncMirrorsJournalAndSnapshot(t *testing.T) {
	ctx := context.Background()
	replicaDir := t.TempDir()
	rt := openTestRuntime(t, func(cfg *Config) {
		cfg.Replicas = []string{replicaDir}
		cfg.ReplicationMode = ReplicationSync
	})

	_, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{"name": "gizmo"}, 1)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(replicaDir, "runtime_journal.log"))

	require.NoError(t, rt.Snapshot())
	require.FileExists(t, filepath.Join(replicaDir, "runtime_snapshot.json"))
}
