package models

import "time"

type NodeHealthRecord struct {
	ID         string
	Node       NodeID
	Reporter   NodeID
	Shard      ShardID
	Status     GossipEventType
	DetectedAt time.Time
}
