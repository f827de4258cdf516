// Package coordinator turns what the node learns from outside its shards
// (gossip membership, gossiped health events, registry changes) into shard
// messages for every local shard.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

type ShardBus interface {
	Broadcast(ctx context.Context, msg models.ShardMessage) error
}

type Gossiper interface {
	Gossip(ctx context.Context, event models.GossipEvent) error
}

type Coordinator struct {
	self             models.Node
	bus              ShardBus
	gossiper         Gossiper
	membershipEvents <-chan models.MemberShipEvent
	gossipEvents     <-chan models.GossipEvent
}

// NewCoordinator creates a coordinator of node self. gossiper is used to
// refute deaths of self reported by other nodes and may be nil.
func NewCoordinator(
	self models.Node,
	bus ShardBus,
	gossiper Gossiper,
	membershipEvents <-chan models.MemberShipEvent,
	gossipEvents <-chan models.GossipEvent,
) *Coordinator {
	return &Coordinator{
		self:             self.Clone(),
		bus:              bus,
		gossiper:         gossiper,
		membershipEvents: membershipEvents,
		gossipEvents:     gossipEvents,
	}
}

// StartHandleMembershipChanges blocks until ctx is cancelled or both event
// channels are closed.
func (c *Coordinator) StartHandleMembershipChanges(ctx context.Context) {
	membershipEvents, gossipEvents := c.membershipEvents, c.gossipEvents
	for membershipEvents != nil || gossipEvents != nil {
		select {
		case <-ctx.Done():
			return
		case event, opened := <-membershipEvents:
			if !opened {
				membershipEvents = nil
				continue
			}
			c.processMembership(ctx, event)
		case event, opened := <-gossipEvents:
			if !opened {
				gossipEvents = nil
				continue
			}
			if event.Node == c.self.Name {
				c.refute(ctx, event)
				continue
			}
			c.publish(ctx, event)
		}
	}
}

// refute answers a death of the local node gossiped by a peer whose probe
// failed, so the rest of the cluster puts it back.
func (c *Coordinator) refute(ctx context.Context, event models.GossipEvent) {
	if event.Type != models.GossipEventDead || c.gossiper == nil {
		return
	}
	log.Warn().Msg("cluster considers this node dead, announcing it is alive")
	err := c.gossiper.Gossip(ctx, models.AliveEvent(c.self))
	if err != nil {
		log.Error().Err(err).Msg("failed to refute death of this node")
	}
}

func (c *Coordinator) processMembership(ctx context.Context, event models.MemberShipEvent) {
	switch event.Type {
	case models.MemberShipNew, models.MemberShipUpdating:
		if event.Node == nil {
			log.Warn().Msgf("%s member %s has no shard metadata, skip it", event.Type, event.From)
			return
		}
		log.Info().Msgf("processing node addition: %s", event.From)
		c.publish(ctx, models.AliveEvent(*event.Node))
	case models.MemberShipLeft:
		log.Info().Msgf("node %s left the cluster", event.From)
		c.publish(ctx, models.DeadEvent(event.From))
	case models.MemberShipDead:
		log.Info().Msgf("processing node deletion: %s", event.From)
		c.publish(ctx, models.DeadEvent(event.From))
	case models.MemberShipSuspect, models.MemberShipUnknown:
		log.Debug().Msgf("skip %s membership event of node %s", event.Type, event.From)
	}
}

func (c *Coordinator) publish(ctx context.Context, event models.GossipEvent) {
	err := c.broadcast(ctx, event)
	if err != nil {
		log.Error().Err(err).Msgf("failed to deliver %s event of node %s to local shards", event.Type, event.Node)
	}
}

func (c *Coordinator) broadcast(ctx context.Context, event models.GossipEvent) error {
	if event.Node == c.self.Name {
		return nil
	}
	return c.bus.Broadcast(ctx, models.GossipShardMessage(models.ExternalShard, event))
}

type EventOperationType int8

const (
	Unknown EventOperationType = iota
	Create
	Update
	Delete
)

// NodeEvent is a change of the node registry, Node.Name is always set.
type NodeEvent struct {
	Operation EventOperationType
	Timestamp time.Time
	Node      models.Node
}

func (c *Coordinator) HandleNodeEvents(ctx context.Context, nodeEvents []NodeEvent) error {
	var errs []error
	for _, event := range nodeEvents {
		var gossipEvent models.GossipEvent
		switch event.Operation {
		case Create, Update:
			gossipEvent = models.AliveEvent(event.Node)
		case Delete:
			gossipEvent = models.DeadEvent(event.Node.Name)
		default:
			log.Warn().Msgf("skip node event with unknown operation %d", event.Operation)
			continue
		}
		err := c.broadcast(ctx, gossipEvent)
		if err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", event.Node.Name, err))
			continue
		}
		log.Info().Msgf("applied %s of node %s from registry feed", gossipEvent.Type, event.Node.Name)
	}
	return errors.Join(errs...)
}
