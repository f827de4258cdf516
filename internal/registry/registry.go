// Package registry keeps a shard's view of the other cluster nodes.
package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

type Registry struct {
	mu    sync.RWMutex
	self  models.NodeID
	nodes map[models.NodeID]models.Node
}

func New(self models.NodeID, nodes ...models.Node) *Registry {
	r := &Registry{
		self:  self,
		nodes: make(map[models.NodeID]models.Node, len(nodes)),
	}
	for _, node := range nodes {
		r.Upsert(node)
	}
	return r
}

// Snapshot returns copies of all known nodes ordered by name. The lock is
// released before returning, callers may keep the result across I/O.
func (r *Registry) Snapshot() []models.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]models.Node, 0, len(r.nodes))
	for _, node := range r.nodes {
		snapshot = append(snapshot, node.Clone())
	}
	slices.SortFunc(snapshot, func(a, b models.Node) int {
		return strings.Compare(string(a.Name), string(b.Name))
	})
	return snapshot
}

// Upsert adds or replaces node, reporting whether anything changed. The
// local node is never stored.
func (r *Registry) Upsert(node models.Node) bool {
	if node.Name == r.self || node.Name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.nodes[node.Name]
	if exists && prev.IP == node.IP && prev.GossipPort == node.GossipPort && slices.Equal(prev.ShardPorts, node.ShardPorts) {
		return false
	}
	r.nodes[node.Name] = node.Clone()
	return true
}

func (r *Registry) Remove(name models.NodeID) (models.Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, exists := r.nodes[name]
	if !exists {
		return models.Node{}, false
	}
	delete(r.nodes, name)
	return node, true
}

func (r *Registry) Get(name models.NodeID) (models.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, exists := r.nodes[name]
	return node.Clone(), exists
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
