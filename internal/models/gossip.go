package models

type GossipEventType int8

const (
	GossipEventUnknown GossipEventType = iota
	GossipEventAlive
	GossipEventDead
)

func (t GossipEventType) String() string {
	switch t {
	case GossipEventAlive:
		return "alive"
	case GossipEventDead:
		return "dead"
	}
	return "unknown"
}

// GossipEvent is the cluster health notification. A dead event carries only
// the node name; an alive event also carries the node metadata.
type GossipEvent struct {
	Type  GossipEventType `codec:"type"`
	Node  NodeID          `codec:"node"`
	Alive *Node           `codec:"alive,omitempty"`
}

func DeadEvent(name NodeID) GossipEvent {
	return GossipEvent{
		Type: GossipEventDead,
		Node: name,
	}
}

func AliveEvent(node Node) GossipEvent {
	node = node.Clone()
	return GossipEvent{
		Type:  GossipEventAlive,
		Node:  node.Name,
		Alive: &node,
	}
}
