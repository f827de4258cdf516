package etcdwatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/coordinator"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

func TestToNodeEvents(t *testing.T) {
	w := &NodeWatcher{prefix: "/shard-nodes/"}

	events := []*clientv3.Event{
		{
			Type: clientv3.EventTypePut,
			Kv: &mvccpb.KeyValue{
				Key:            []byte("/shard-nodes/b"),
				Value:          []byte(`{"ip":"10.0.0.2","shard_ports":[7000,7001],"gossip_port":7946}`),
				CreateRevision: 5,
				ModRevision:    5,
			},
		},
		{
			Type: clientv3.EventTypePut,
			Kv: &mvccpb.KeyValue{
				Key:            []byte("/shard-nodes/b"),
				Value:          []byte(`{"name":"ignored","ip":"10.0.0.2","shard_ports":[7000]}`),
				CreateRevision: 5,
				ModRevision:    6,
			},
		},
		{Type: clientv3.EventTypeDelete, Kv: &mvccpb.KeyValue{Key: []byte("/shard-nodes/c")}},
		{Type: clientv3.EventTypePut, Kv: &mvccpb.KeyValue{Key: []byte("/shard-nodes/d"), Value: []byte("not json"), CreateRevision: 7, ModRevision: 7}},
		{Type: clientv3.EventTypePut, Kv: &mvccpb.KeyValue{Key: []byte("/shard-nodes/nested/e"), Value: []byte("{}")}},
		{Type: clientv3.EventTypeDelete},
	}

	result, err := w.toNodeEvents(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node record d")
	assert.Equal(t, []coordinator.NodeEvent{
		{
			Operation: coordinator.Create,
			Node:      models.Node{Name: "b", IP: "10.0.0.2", ShardPorts: []uint16{7000, 7001}, GossipPort: 7946},
		},
		{
			Operation: coordinator.Update,
			Node:      models.Node{Name: "b", IP: "10.0.0.2", ShardPorts: []uint16{7000}},
		},
		{
			Operation: coordinator.Delete,
			Node:      models.Node{Name: "c"},
		},
	}, result)
}

func TestNodeRecordRoundTrip(t *testing.T) {
	w := &NodeWatcher{prefix: "/shard-nodes/"}
	node := models.Node{Name: "b", IP: "10.0.0.2", ShardPorts: []uint16{7000}, GossipPort: 7946}

	assert.Equal(t, "/shard-nodes/b", w.key(node.Name))

	parsed, err := toDto(node).ToModel()
	require.NoError(t, err)
	assert.Equal(t, node, parsed)
}
