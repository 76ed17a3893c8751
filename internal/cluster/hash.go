package cluster

import (
	"hash/fnv"
	"sort"

	"github.com/kasuganosora/memdb/internal/runtime"
)

// StableHashPolicy is the default Policy: it hashes a key's
// {entity_type, persist_id} pair with FNV-1a and reduces it modulo the
// node count, giving a deterministic, evenly spread assignment without
// needing any coordination between nodes.
type StableHashPolicy struct {
	nodes []NodeID
}

// NewStableHashPolicy builds a policy over nodes, sorted so that two
// policies built from the same (possibly differently-ordered) node set
// agree on every key's owner.
func NewStableHashPolicy(nodes []NodeID) *StableHashPolicy {
	sorted := make([]NodeID, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &StableHashPolicy{nodes: sorted}
}

func (p *StableHashPolicy) NodeFor(key runtime.Key) NodeID {
	if len(p.nodes) == 0 {
		return ""
	}
	h := fnv.New64a()
	h.Write([]byte(key.EntityType))
	h.Write([]byte{0})
	h.Write([]byte(key.PersistID))
	idx := h.Sum64() % uint64(len(p.nodes))
	return p.nodes[idx]
}
