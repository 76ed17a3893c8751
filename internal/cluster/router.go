package cluster

import (
	"context"
	"fmt"

	"github.com/kasuganosora/memdb/internal/logging"
	"github.com/kasuganosora/memdb/internal/runtime"
)

// Router is one node's view of the cluster: it knows its own node id, the
// policy that decides ownership, the local runtime that owns keys routed
// to this node, and a forwarder for keys owned elsewhere.
type Router struct {
	self      NodeID
	policy    Policy
	local     *runtime.Runtime
	forwarder Forwarder
	log       *logging.Logger
}

// NewRouter builds a router. policy defaults to a StableHashPolicy over
// []NodeID{self} (a single-node cluster routes everything locally) when
// nil.
func NewRouter(self NodeID, local *runtime.Runtime, policy Policy, forwarder Forwarder, log *logging.Logger) *Router {
	if policy == nil {
		policy = NewStableHashPolicy([]NodeID{self})
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Router{self: self, policy: policy, local: local, forwarder: forwarder, log: log.Named("cluster")}
}

// Owns reports whether key routes to this router's own node.
func (r *Router) Owns(key runtime.Key) bool {
	return r.policy.NodeFor(key) == r.self
}

// Dispatch applies env's command locally if this node owns its target
// key, otherwise forwards it to the owning node via r.forwarder.
func (r *Router) Dispatch(ctx context.Context, env RuntimeCommandEnvelope) (runtime.State, error) {
	node := r.policy.NodeFor(env.TargetKey)
	if node == r.self {
		return r.local.ApplyDeterministicCommand(ctx, env.TargetKey.EntityType, env.TargetKey.PersistID, env.CommandName, env.Payload)
	}
	if r.forwarder == nil {
		return nil, fmt.Errorf("cluster: key %+v routes to node %q but no forwarder is configured", env.TargetKey, node)
	}
	r.log.Debugw("forwarding command", "target_node", node, "entity_type", env.TargetKey.EntityType, "persist_id", env.TargetKey.PersistID, "command", env.CommandName)
	return r.forwarder.Forward(node, env)
}
