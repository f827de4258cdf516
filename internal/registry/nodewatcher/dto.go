package nodewatcher

// NodeDto is a row of the nodes table as captured by Debezium.
type NodeDto struct {
	Name       string `json:"name"`
	IP         string `json:"ip"`
	ShardPorts []int  `json:"shard_ports"`
	GossipPort int    `json:"gossip_port"`
}

type Value[T any] struct {
	Before *T     `json:"before"`
	After  *T     `json:"after"`
	Op     string `json:"op"`
	TsMs   int64  `json:"ts_ms"`
}

// {"before":null,"after":{"name":"node-2","ip":"10.0.0.2","shard_ports":[7000,7001],"gossip_port":7946},
//  "source":{"connector":"postgresql","table":"nodes",...},"op":"c","ts_ms":1763998525108,"transaction":null}
