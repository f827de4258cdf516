package models

type MemberShipEventType int8

const (
	MemberShipUnknown MemberShipEventType = iota
	MemberShipNew
	MemberShipUpdating
	MemberShipSuspect
	MemberShipDead
	MemberShipLeft
)

func (t MemberShipEventType) String() string {
	switch t {
	case MemberShipNew:
		return "new"
	case MemberShipUpdating:
		return "updating"
	case MemberShipSuspect:
		return "suspect"
	case MemberShipDead:
		return "dead"
	case MemberShipLeft:
		return "left"
	}
	return "unknown"
}

// MemberShipEvent is produced by the gossip layer. Node is filled for
// new and updating members, when their metadata could be decoded. Left is a
// graceful leave, Dead a failure noticed by the gossip layer.
type MemberShipEvent struct {
	Type MemberShipEventType
	From NodeID
	Node *Node
}
