package cluster

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kasuganosora/memdb/internal/runtime"
)

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.Open(runtime.Config{Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestStableHashPolicy_DeterministicAndOrderIndependent(t *testing.T) {
	key := runtime.Key{EntityType: "widget", PersistID: "abc"}

	p1 := NewStableHashPolicy([]NodeID{"a", "b", "c"})
	p2 := NewStableHashPolicy([]NodeID{"c", "a", "b"})

	require.Equal(t, p1.NodeFor(key), p2.NodeFor(key))

	seen := map[NodeID]int{}
	for i := 0; i < 100; i++ {
		k := runtime.Key{EntityType: "widget", PersistID: string(rune('a' + i%26))}
		seen[p1.NodeFor(k)]++
	}
	require.Greater(t, len(seen), 1, "hashing 26 distinct keys across 3 nodes should not collapse onto one node")
}

func TestRouter_AppliesLocallyWhenOwned(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	rt.RegisterCommand("widget", "Touch", func(state runtime.State, payload map[string]any) (runtime.State, error) {
		state["touched"] = true
		return state, nil
	}, nil)

	id, err := rt.CreateEntity(ctx, "widget", "widgets", map[string]any{}, 1)
	require.NoError(t, err)

	policy := NewStableHashPolicy([]NodeID{"only-node"})
	r := NewRouter("only-node", rt, policy, nil, nil)

	key := runtime.Key{EntityType: "widget", PersistID: id}
	require.True(t, r.Owns(key))

	state, err := r.Dispatch(ctx, RuntimeCommandEnvelope{TargetKey: key, CommandName: "Touch"})
	require.NoError(t, err)
	require.Equal(t, true, state["touched"])
}

func TestRouter_ForwardsForeignKeys(t *testing.T) {
	ctx := context.Background()
	rtA := newTestRuntime(t)
	rtB := newTestRuntime(t)

	handler := func(state runtime.State, payload map[string]any) (runtime.State, error) {
		state["touched"] = true
		return state, nil
	}
	rtA.RegisterCommand("widget", "Touch", handler, nil)
	rtB.RegisterCommand("widget", "Touch", handler, nil)

	forwarder := NewInMemoryForwarder()
	policy := NewStableHashPolicy([]NodeID{"node-a", "node-b"})

	routerA := NewRouter("node-a", rtA, policy, forwarder, nil)
	routerB := NewRouter("node-b", rtB, policy, forwarder, nil)
	forwarder.Register("node-a", routerA)
	forwarder.Register("node-b", routerB)

	var keyOnA, keyOnB runtime.Key
	for i := 0; i < 1000; i++ {
		k := runtime.Key{EntityType: "widget", PersistID: strconv.Itoa(i)}
		switch policy.NodeFor(k) {
		case "node-a":
			if keyOnA == (runtime.Key{}) {
				keyOnA = k
			}
		case "node-b":
			if keyOnB == (runtime.Key{}) {
				keyOnB = k
			}
		}
		if keyOnA != (runtime.Key{}) && keyOnB != (runtime.Key{}) {
			break
		}
	}
	require.NotEqual(t, runtime.Key{}, keyOnA)
	require.NotEqual(t, runtime.Key{}, keyOnB)

	require.NoError(t, rtA.UpsertState(ctx, keyOnA, "widgets", 1, runtime.State{}, "seed"))
	require.NoError(t, rtB.UpsertState(ctx, keyOnB, "widgets", 1, runtime.State{}, "seed"))

	state, err := routerA.Dispatch(ctx, RuntimeCommandEnvelope{TargetKey: keyOnB, CommandName: "Touch"})
	require.NoError(t, err, "node-a must forward a key it doesn't own to node-b")
	require.Equal(t, true, state["touched"])

	_, err = rtA.GetState(ctx, keyOnB)
	require.Error(t, err, "the key lives on node-b's runtime, not node-a's")
}

func TestRouter_NoForwarderConfiguredErrors(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)
	policy := NewStableHashPolicy([]NodeID{"node-a", "node-b"})
	router := NewRouter("node-a", rt, policy, nil, nil)

	var foreign runtime.Key
	for i := 0; i < 1000; i++ {
		k := runtime.Key{EntityType: "widget", PersistID: strconv.Itoa(i)}
		if policy.NodeFor(k) != "node-a" {
			foreign = k
			break
		}
	}
	require.NotEqual(t, runtime.Key{}, foreign)

	_, err := router.Dispatch(ctx, RuntimeCommandEnvelope{TargetKey: foreign, CommandName: "Touch"})
	require.Error(t, err)
}
