// Package shard holds the per-shard context: the shard's own view of the
// cluster and its ways to talk to the other local shards and to the cluster.
package shard

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/registry"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/sharder"
)

type LocalShards interface {
	Broadcast(ctx context.Context, msg models.ShardMessage) error
	Inbox(id models.ShardID) <-chan models.ShardMessage
	Done() <-chan struct{}
}

type Gossiper interface {
	Gossip(ctx context.Context, event models.GossipEvent) error
}

type Journal interface {
	NotifyNodeDead(shard models.ShardID, node models.NodeID)
}

type nopJournal struct{}

func (nopJournal) NotifyNodeDead(models.ShardID, models.NodeID) {}

type Router interface {
	AddNode(node models.Node) error
	RemoveNode(name models.NodeID) []sharder.ShardOwner
	Owner(key []byte) (sharder.ShardOwner, error)
}

type Deps struct {
	Local    LocalShards
	Gossip   Gossiper
	Router   Router
	Journal  Journal
	Metrics  metrics.Metrics
	Registry *registry.Registry
}

type Shard struct {
	id   models.ShardID
	self models.Node

	// viewMu keeps nodes and router changing together, the detector and
	// Run update them from different goroutines.
	viewMu sync.Mutex
	nodes  *registry.Registry
	router Router

	local   LocalShards
	gossip  Gossiper
	journal Journal
	metrics metrics.Metrics
	logger  zerolog.Logger
}

// New creates the context of shard id running on node self. The local node
// is put on the routing ring right away.
func New(id models.ShardID, self models.Node, deps Deps) (*Shard, error) {
	if deps.Local == nil || deps.Gossip == nil || deps.Router == nil {
		return nil, fmt.Errorf("shard %d: local shards, gossip and router are required", id)
	}
	s := &Shard{
		id:      id,
		self:    self.Clone(),
		nodes:   deps.Registry,
		router:  deps.Router,
		local:   deps.Local,
		gossip:  deps.Gossip,
		journal: deps.Journal,
		metrics: deps.Metrics,
		logger:  log.With().Str("node", self.Name.String()).Int("shard", int(id)).Logger(),
	}
	if s.nodes == nil {
		s.nodes = registry.New(self.Name)
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.journal == nil {
		s.journal = nopJournal{}
	}
	err := s.router.AddNode(s.self)
	if err != nil {
		return nil, fmt.Errorf("failed to put local node on the ring: %w", err)
	}
	for _, node := range s.nodes.Snapshot() {
		err = s.router.AddNode(node)
		if err != nil {
			return nil, fmt.Errorf("failed to put node %s on the ring: %w", node.Name, err)
		}
	}
	return s, nil
}

func (s *Shard) ID() models.ShardID {
	return s.id
}

func (s *Shard) Self() models.Node {
	return s.self.Clone()
}

func (s *Shard) Nodes() []models.Node {
	return s.nodes.Snapshot()
}

func (s *Shard) Owner(key []byte) (sharder.ShardOwner, error) {
	return s.router.Owner(key)
}

// HandleDeadNode is called by the failure detector of this shard. Besides
// forgetting the node it records the death in the journal.
func (s *Shard) HandleDeadNode(ctx context.Context, name models.NodeID) {
	if s.forgetNode(name) {
		s.journal.NotifyNodeDead(s.id, name)
	}
}

func (s *Shard) BroadcastMessageToLocalShards(ctx context.Context, msg models.ShardMessage) error {
	msg.From = s.id
	return s.local.Broadcast(ctx, msg)
}

func (s *Shard) Gossip(ctx context.Context, event models.GossipEvent) error {
	return s.gossip.Gossip(ctx, event)
}

// Run applies messages from the other local shards and the gossip layer
// until ctx is cancelled or the local shards are closed.
func (s *Shard) Run(ctx context.Context) {
	inbox := s.local.Inbox(s.id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.local.Done():
			return
		case msg := <-inbox:
			s.HandleShardMessage(msg)
		}
	}
}

func (s *Shard) HandleShardMessage(msg models.ShardMessage) {
	switch msg.Event.Type {
	case models.ShardEventGossip:
		if msg.Event.Gossip == nil {
			s.logger.Warn().Msgf("got empty gossip event from shard %d", msg.From)
			return
		}
		s.handleGossipEvent(*msg.Event.Gossip)
	default:
		s.logger.Warn().Msgf("got unknown shard event %d from shard %d", msg.Event.Type, msg.From)
	}
}

func (s *Shard) handleGossipEvent(event models.GossipEvent) {
	switch event.Type {
	case models.GossipEventDead:
		s.forgetNode(event.Node)
	case models.GossipEventAlive:
		if event.Alive == nil {
			s.logger.Warn().Msgf("alive event for node %s without metadata", event.Node)
			return
		}
		s.addNode(*event.Alive)
	default:
		s.logger.Warn().Msgf("got unknown gossip event %d for node %s", event.Type, event.Node)
	}
}

func (s *Shard) addNode(node models.Node) {
	if node.Name == s.self.Name {
		return
	}
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	if !s.nodes.Upsert(node) {
		return
	}
	err := s.router.AddNode(node)
	if err != nil {
		s.logger.Error().Err(err).Msgf("failed to put node %s on the ring", node.Name)
	}
	s.logger.Info().Msgf("node %s is alive with shard ports %v", node.Name, node.ShardPorts)
	s.metrics.Gauge(fmt.Sprintf("shard.%d.nodes", s.id), s.nodes.Len())
}

// forgetNode reports whether the node was known before.
func (s *Shard) forgetNode(name models.NodeID) bool {
	if name == s.self.Name {
		return false
	}
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	_, known := s.nodes.Remove(name)
	removed := s.router.RemoveNode(name)
	if !known {
		return false
	}
	s.logger.Info().Msgf("node %s is dead, removed %d shards from ring", name, len(removed))
	s.metrics.Gauge(fmt.Sprintf("shard.%d.nodes", s.id), s.nodes.Len())
	return true
}
