package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/kasuganosora/memdb/internal/runtime"
)

// InMemoryForwarder routes envelopes directly to other Routers registered
// in the same process — a real deployment's forwarder would serialize
// env and ship it over a transport; this one exists for tests and
// single-process multi-node simulations.
type InMemoryForwarder struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Router
}

// NewInMemoryForwarder builds an empty forwarder; routers register
// themselves with Register before any cross-node dispatch can reach them.
func NewInMemoryForwarder() *InMemoryForwarder {
	return &InMemoryForwarder{nodes: map[NodeID]*Router{}}
}

// Register makes node's router reachable by Forward.
func (f *InMemoryForwarder) Register(node NodeID, r *Router) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[node] = r
}

func (f *InMemoryForwarder) Forward(node NodeID, env RuntimeCommandEnvelope) (runtime.State, error) {
	f.mu.RLock()
	r, ok := f.nodes[node]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cluster: no registered router for node %q", node)
	}
	if !r.Owns(env.TargetKey) {
		return nil, fmt.Errorf("cluster: node %q does not own key %+v", node, env.TargetKey)
	}
	return r.local.ApplyDeterministicCommand(context.Background(), env.TargetKey.EntityType, env.TargetKey.PersistID, env.CommandName, env.Payload)
}
