// Package sharder routes keys to shard owners over a consistent hashing ring
// and keeps that ring in sync with the shard's view of cluster health.
package sharder

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

type ShardOwner struct {
	Node models.NodeID
	Port uint16
}

func (o ShardOwner) String() string {
	return fmt.Sprintf("%s/%d", o.Node, o.Port)
}

func ParseShardOwner(str string) (ShardOwner, error) {
	idx := strings.LastIndexByte(str, '/')
	if idx <= 0 {
		return ShardOwner{}, fmt.Errorf("invalid shard owner format: %q", str)
	}
	port, err := strconv.ParseUint(str[idx+1:], 10, 16)
	if err != nil {
		return ShardOwner{}, fmt.Errorf("failed to parse port: %w", err)
	}
	return ShardOwner{
		Node: models.NodeID(str[:idx]),
		Port: uint16(port),
	}, nil
}

type ConsistentHashing interface {
	MarkHealthy(host string) error
	MarkUnhealthy(host string) error
	GetWithOffset(key uint64, offset uint) (string, error)
}

type Router struct {
	mu                sync.Mutex
	ring              ConsistentHashing
	owners            map[models.NodeID][]ShardOwner
	replicationFactor uint16
}

func NewRouter(ring ConsistentHashing, replicationFactor uint16) *Router {
	if replicationFactor == 0 {
		replicationFactor = 1
	}
	return &Router{
		ring:              ring,
		owners:            make(map[models.NodeID][]ShardOwner),
		replicationFactor: replicationFactor,
	}
}

// AddNode puts every shard of node on the ring, shards the node no longer
// advertises are taken off.
func (r *Router) AddNode(node models.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := make([]ShardOwner, 0, len(node.ShardPorts))
	for _, port := range node.ShardPorts {
		owners = append(owners, ShardOwner{Node: node.Name, Port: port})
	}
	for _, prev := range r.owners[node.Name] {
		if containsOwner(owners, prev) {
			continue
		}
		err := r.ring.MarkUnhealthy(prev.String())
		if err != nil {
			return fmt.Errorf("failed to remove stale shard %s: %w", prev, err)
		}
	}
	for _, owner := range owners {
		err := r.ring.MarkHealthy(owner.String())
		if err != nil {
			return fmt.Errorf("failed to add shard %s: %w", owner, err)
		}
	}
	if len(owners) == 0 {
		delete(r.owners, node.Name)
		return nil
	}
	r.owners[node.Name] = owners
	return nil
}

// RemoveNode takes all shards of the node off the ring and returns them.
func (r *Router) RemoveNode(name models.NodeID) []ShardOwner {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners := r.owners[name]
	for _, owner := range owners {
		err := r.ring.MarkUnhealthy(owner.String())
		if err != nil {
			log.Error().Err(err).Msgf("failed to remove shard %s from ring", owner)
		}
	}
	delete(r.owners, name)
	return owners
}

// Owners returns up to replicationFactor distinct shard owners of key.
func (r *Router) Owners(key []byte) ([]ShardOwner, error) {
	hash := xxhash.Sum64(key)

	result := make([]ShardOwner, 0, r.replicationFactor)
	for i := range uint(r.replicationFactor) {
		host, err := r.ring.GetWithOffset(hash, i)
		if err != nil {
			return nil, fmt.Errorf("failed to get owner of key: %w", err)
		}
		owner, err := ParseShardOwner(host)
		if err != nil {
			return nil, err
		}
		if containsOwner(result, owner) {
			continue
		}
		result = append(result, owner)
	}
	return result, nil
}

func (r *Router) Owner(key []byte) (ShardOwner, error) {
	owners, err := r.Owners(key)
	if err != nil {
		return ShardOwner{}, err
	}
	return owners[0], nil
}

func (r *Router) Nodes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}

func containsOwner(owners []ShardOwner, owner ShardOwner) bool {
	for _, o := range owners {
		if o == owner {
			return true
		}
	}
	return false
}
