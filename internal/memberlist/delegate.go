package memberlist

import (
	"github.com/hashicorp/memberlist"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/wire"
)

type delegate struct {
	meta   []byte
	queue  *memberlist.TransmitLimitedQueue
	gossip chan<- models.GossipEvent
}

var _ memberlist.Delegate = (*delegate)(nil)

func newDelegate(meta []byte, queue *memberlist.TransmitLimitedQueue, gossip chan<- models.GossipEvent) *delegate {
	return &delegate{
		meta:   meta,
		queue:  queue,
		gossip: gossip,
	}
}

func (d *delegate) NodeMeta(limit int) []byte {
	if len(d.meta) > limit {
		log.Error().Msgf("node metadata of %d bytes does not fit into %d", len(d.meta), limit)
		return nil
	}
	return d.meta
}

// NotifyMsg is called from the memberlist packet handler and must not block.
func (d *delegate) NotifyMsg(msg []byte) {
	if len(msg) == 0 {
		return
	}
	var event models.GossipEvent
	err := wire.Decode(msg, &event)
	if err != nil {
		log.Error().Err(err).Msg("failed to decode gossip message")
		return
	}
	if event.Node == "" {
		log.Warn().Msgf("dropped %s gossip event without node", event.Type)
		return
	}
	select {
	case d.gossip <- event:
	default:
		log.Warn().Msgf("gossip event queue is full, dropped %s event for node %s", event.Type, event.Node)
	}
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	return d.queue.GetBroadcasts(overhead, limit)
}

func (d *delegate) LocalState(bool) []byte {
	return nil
}

func (d *delegate) MergeRemoteState([]byte, bool) {}

type nodeBroadcast struct {
	node models.NodeID
	msg  []byte
}

var _ memberlist.Broadcast = (*nodeBroadcast)(nil)

// Invalidates makes the newest event about a node win over queued ones.
func (b *nodeBroadcast) Invalidates(other memberlist.Broadcast) bool {
	prev, ok := other.(*nodeBroadcast)
	return ok && prev.node == b.node
}

func (b *nodeBroadcast) Message() []byte {
	return b.msg
}

func (b *nodeBroadcast) Finished() {}
