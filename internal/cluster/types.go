// Package cluster routes entity-runtime commands across nodes: a policy
// maps {entity_type, persist_id} keys to owning node ids, and a forwarder
// ships envelopes for keys a local node doesn't own to whichever node
// does. This is an optional layer above internal/runtime — a single-node
// embedding never needs it.
package cluster

import "github.com/kasuganosora/memdb/internal/runtime"

// RuntimeCommandEnvelope wraps one runtime command for routing, carrying
// an optional idempotency key a forwarder or receiving node can use to
// de-duplicate retried deliveries.
type RuntimeCommandEnvelope struct {
	TargetKey      runtime.Key
	CommandName    string
	Payload        map[string]any
	IdempotencyKey string
}

// NodeID identifies one cluster member.
type NodeID string

// Policy maps a key to the node id that owns it.
type Policy interface {
	NodeFor(key runtime.Key) NodeID
}

// Forwarder dispatches an envelope to the node that owns its target key.
// It is the seam between this package's routing decision and whatever
// real transport a deployment uses (gRPC, an internal queue, HTTP) — only
// an in-memory implementation, for tests, lives in this package.
type Forwarder interface {
	Forward(node NodeID, env RuntimeCommandEnvelope) (runtime.State, error)
}
