package models

type ShardID int

// ExternalShard is the sender id of messages that did not originate from a
// local shard (gossip layer, registry feeds).
const ExternalShard ShardID = -1

type ShardEventType int8

const (
	ShardEventUnknown ShardEventType = iota
	ShardEventGossip
)

type ShardEvent struct {
	Type   ShardEventType
	Gossip *GossipEvent
}

type ShardMessage struct {
	From  ShardID
	Event ShardEvent
}

func GossipShardMessage(from ShardID, event GossipEvent) ShardMessage {
	return ShardMessage{
		From: from,
		Event: ShardEvent{
			Type:   ShardEventGossip,
			Gossip: &event,
		},
	}
}
