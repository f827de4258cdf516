package models

import (
	"net"
	"slices"
	"strconv"
)

type NodeID string

func (n NodeID) String() string {
	return string(n)
}

// Node is a cluster member as seen by one shard. ShardPorts keep the order
// the node advertised them in.
type Node struct {
	Name       NodeID   `codec:"name" json:"name"`
	IP         string   `codec:"ip" json:"ip"`
	ShardPorts []uint16 `codec:"shard_ports" json:"shard_ports"`
	GossipPort uint16   `codec:"gossip_port" json:"gossip_port"`
}

// Eligible reports whether the node exposes at least one shard endpoint.
func (n Node) Eligible() bool {
	return len(n.ShardPorts) != 0
}

func (n Node) Clone() Node {
	n.ShardPorts = slices.Clone(n.ShardPorts)
	return n
}

func (n Node) ShardAddr(port uint16) string {
	return net.JoinHostPort(n.IP, strconv.Itoa(int(port)))
}
