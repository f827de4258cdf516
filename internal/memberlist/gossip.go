package memberlist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/wire"
)

var ErrClosed = errors.New("gossip layer is closed")

type Config struct {
	NodeName            string        `envconfig:"NODE_NAME"`
	BindAddr            string        `envconfig:"GOSSIP_BIND_ADDR,default=0.0.0.0"`
	Port                int           `envconfig:"GOSSIP_PORT,default=7946"`
	GossipProbeInterval time.Duration `envconfig:"GOSSIP_PROBE_INTERVAL,default=1s"`
	GossipProbeTimeout  time.Duration `envconfig:"GOSSIP_PROBE_TIMEOUT,default=500ms"`
	RetransmitMult      int           `envconfig:"GOSSIP_RETRANSMIT_MULT,default=4"`
	SeedNodes           []string      `envconfig:"GOSSIP_SEED_NODES,optional"`
}

type MemberList struct {
	list      atomic.Pointer[memberlist.Memberlist]
	queue     *memberlist.TransmitLimitedQueue
	seedNodes []string
	closed    atomic.Bool
}

// New starts the gossip member. Membership changes are sent to membership,
// health events gossiped by other nodes are sent to gossip. Both channels are
// written until ctx is cancelled.
func New(
	ctx context.Context,
	cfg Config,
	self models.Node,
	membership chan<- models.MemberShipEvent,
	gossip chan<- models.GossipEvent,
) (*MemberList, error) {
	const eventBufSize = 256

	meta, err := wire.Encode(self)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node metadata: %w", err)
	}
	if len(meta) > memberlist.MetaMaxSize {
		return nil, fmt.Errorf("node metadata is %d bytes, limit is %d", len(meta), memberlist.MetaMaxSize)
	}

	l := &MemberList{
		seedNodes: cfg.SeedNodes,
	}
	l.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       l.numMembers,
		RetransmitMult: cfg.RetransmitMult,
	}

	events := make(chan memberlist.NodeEvent, eventBufSize)
	config := memberlist.DefaultLocalConfig()
	config.Name = cfg.NodeName
	config.BindAddr = cfg.BindAddr
	config.BindPort = cfg.Port
	config.AdvertisePort = cfg.Port
	if self.IP != "" {
		config.AdvertiseAddr = self.IP
	}
	config.LogOutput = io.Discard
	config.ProbeInterval = cfg.GossipProbeInterval
	config.ProbeTimeout = cfg.GossipProbeTimeout
	config.Delegate = newDelegate(meta, l.queue, gossip)
	config.Events = &memberlist.ChannelEventDelegate{
		Ch: events,
	}

	ml, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	l.list.Store(ml)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case mlEvent, opened := <-events:
				if !opened {
					return
				}
				log.Debug().Msgf(
					"got event from node %s: type=%d, node.status=%d",
					mlEvent.Node.Name,
					mlEvent.Event,
					mlEvent.Node.State,
				)
				event := translateEvent(mlEvent)
				if event.Type == models.MemberShipUnknown {
					log.Warn().Msgf(
						"got unknown event from node %s: type=%d, node.status=%d",
						mlEvent.Node.Name,
						mlEvent.Event,
						mlEvent.Node.State,
					)
					continue
				}
				select {
				case membership <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return l, nil
}

// translateEvent maps memberlist notifications onto membership events,
// unknown combinations give MemberShipUnknown.
func translateEvent(mlEvent memberlist.NodeEvent) models.MemberShipEvent {
	event := models.MemberShipEvent{
		Type: models.MemberShipUnknown,
		From: models.NodeID(mlEvent.Node.Name),
	}
	switch mlEvent.Event {
	case memberlist.NodeJoin:
		event.Type = models.MemberShipNew
		event.Node = nodeFromMember(mlEvent.Node)
	case memberlist.NodeLeave:
		switch mlEvent.Node.State {
		case memberlist.StateLeft:
			event.Type = models.MemberShipLeft
		case memberlist.StateSuspect:
			event.Type = models.MemberShipSuspect
		case memberlist.StateDead, memberlist.StateAlive:
			event.Type = models.MemberShipDead
		}
	case memberlist.NodeUpdate:
		switch mlEvent.Node.State {
		case memberlist.StateSuspect:
			event.Type = models.MemberShipSuspect
		case memberlist.StateAlive:
			event.Type = models.MemberShipUpdating
			event.Node = nodeFromMember(mlEvent.Node)
		}
	}
	return event
}

// nodeFromMember decodes the metadata a member advertised. Members without
// metadata are not shard nodes and give nil.
func nodeFromMember(member *memberlist.Node) *models.Node {
	if member == nil || len(member.Meta) == 0 {
		return nil
	}
	var node models.Node
	err := wire.Decode(member.Meta, &node)
	if err != nil {
		log.Error().Err(err).Msgf("failed to decode metadata of member %s", member.Name)
		return nil
	}
	if node.Name == "" {
		node.Name = models.NodeID(member.Name)
	}
	if node.IP == "" && member.Addr != nil {
		node.IP = member.Addr.String()
	}
	if node.GossipPort == 0 {
		node.GossipPort = member.Port
	}
	return &node
}

func (l *MemberList) numMembers() int {
	ml := l.list.Load()
	if ml == nil {
		return 1
	}
	return ml.NumMembers()
}

func (l *MemberList) Join(ctx context.Context) error {
	if len(l.seedNodes) == 0 {
		return nil
	}
	joined, err := l.list.Load().Join(l.seedNodes)
	if err != nil {
		return fmt.Errorf("failed to join memberlist: %w", err)
	}
	log.Info().Msgf("joined gossip cluster through %d of %d seed nodes", joined, len(l.seedNodes))
	return nil
}

// Members returns the shard nodes currently alive in the cluster, the local
// node included.
func (l *MemberList) Members() []models.Node {
	members := l.list.Load().Members()
	nodes := make([]models.Node, 0, len(members))
	for _, member := range members {
		node := nodeFromMember(member)
		if node == nil {
			continue
		}
		nodes = append(nodes, *node)
	}
	return nodes
}

// Gossip queues event for dissemination to the cluster. A queued event about
// the same node is replaced.
func (l *MemberList) Gossip(ctx context.Context, event models.GossipEvent) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := wire.Encode(event)
	if err != nil {
		return fmt.Errorf("failed to encode gossip event: %w", err)
	}
	l.queue.QueueBroadcast(&nodeBroadcast{
		node: event.Node,
		msg:  msg,
	})
	return nil
}

func (l *MemberList) GracefullyClose(timeout time.Duration) error {
	if l.closed.Swap(true) {
		return nil
	}
	log.Warn().Msg("start gracefull leaving from gossip cluster")

	err := l.list.Load().Leave(timeout)
	if err != nil {
		return fmt.Errorf("failed to leave gossip cluster: %w", err)
	}
	return l.list.Load().Shutdown()
}

func (l *MemberList) Close() error {
	l.closed.Store(true)
	log.Warn().Msg("force leave gossip cluster")

	return l.list.Load().Shutdown()
}
