package memberlist

import (
	"context"
	"net"
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/wire"
)

func member(t *testing.T, state memberlist.NodeStateType, node *models.Node) *memberlist.Node {
	t.Helper()

	m := &memberlist.Node{
		Name:  "b",
		Addr:  net.ParseIP("10.0.0.2"),
		Port:  7946,
		State: state,
	}
	if node != nil {
		meta, err := wire.Encode(*node)
		require.NoError(t, err)
		m.Meta = meta
	}
	return m
}

func TestTranslateEvent(t *testing.T) {
	node := &models.Node{Name: "b", ShardPorts: []uint16{7000, 7001}}

	tests := []struct {
		name     string
		event    memberlist.NodeEventType
		state    memberlist.NodeStateType
		expected models.MemberShipEventType
		withNode bool
	}{
		{name: "join", event: memberlist.NodeJoin, state: memberlist.StateAlive, expected: models.MemberShipNew, withNode: true},
		{name: "graceful leave", event: memberlist.NodeLeave, state: memberlist.StateLeft, expected: models.MemberShipLeft},
		{name: "dead", event: memberlist.NodeLeave, state: memberlist.StateDead, expected: models.MemberShipDead},
		{name: "leave while alive", event: memberlist.NodeLeave, state: memberlist.StateAlive, expected: models.MemberShipDead},
		{name: "leave while suspect", event: memberlist.NodeLeave, state: memberlist.StateSuspect, expected: models.MemberShipSuspect},
		{name: "suspect", event: memberlist.NodeUpdate, state: memberlist.StateSuspect, expected: models.MemberShipSuspect},
		{name: "metadata update", event: memberlist.NodeUpdate, state: memberlist.StateAlive, expected: models.MemberShipUpdating, withNode: true},
		{name: "update of dead", event: memberlist.NodeUpdate, state: memberlist.StateDead, expected: models.MemberShipUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := translateEvent(memberlist.NodeEvent{
				Event: tt.event,
				Node:  member(t, tt.state, node),
			})
			assert.Equal(t, tt.expected, event.Type)
			assert.Equal(t, models.NodeID("b"), event.From)
			if !tt.withNode {
				assert.Nil(t, event.Node)
				return
			}
			require.NotNil(t, event.Node)
			assert.Equal(t, []uint16{7000, 7001}, event.Node.ShardPorts)
		})
	}
}

func TestNodeFromMemberFillsAddress(t *testing.T) {
	node := nodeFromMember(member(t, memberlist.StateAlive, &models.Node{ShardPorts: []uint16{7000}}))
	require.NotNil(t, node)
	assert.Equal(t, models.Node{
		Name:       "b",
		IP:         "10.0.0.2",
		ShardPorts: []uint16{7000},
		GossipPort: 7946,
	}, *node)

	assert.Nil(t, nodeFromMember(member(t, memberlist.StateAlive, nil)))

	broken := member(t, memberlist.StateAlive, nil)
	broken.Meta = []byte{0xc1}
	assert.Nil(t, nodeFromMember(broken))
}

func TestNodeBroadcastInvalidatesSameNode(t *testing.T) {
	dead := &nodeBroadcast{node: "b"}
	alive := &nodeBroadcast{node: "b"}
	other := &nodeBroadcast{node: "c"}

	assert.True(t, dead.Invalidates(alive))
	assert.False(t, dead.Invalidates(other))
}

func TestQueueKeepsLatestEventPerNode(t *testing.T) {
	l := &MemberList{}
	l.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       l.numMembers,
		RetransmitMult: 1,
	}
	ctx := context.Background()

	require.NoError(t, l.Gossip(ctx, models.AliveEvent(models.Node{Name: "b", ShardPorts: []uint16{7000}})))
	require.NoError(t, l.Gossip(ctx, models.DeadEvent("b")))
	require.NoError(t, l.Gossip(ctx, models.DeadEvent("b")))
	require.NoError(t, l.Gossip(ctx, models.DeadEvent("c")))
	assert.Equal(t, 2, l.queue.NumQueued())

	l.closed.Store(true)
	assert.ErrorIs(t, l.Gossip(ctx, models.DeadEvent("d")), ErrClosed)
}

func TestDelegateDeliversGossip(t *testing.T) {
	events := make(chan models.GossipEvent, 1)
	queue := &memberlist.TransmitLimitedQueue{
		NumNodes:       func() int { return 3 },
		RetransmitMult: 1,
	}
	d := newDelegate([]byte("meta"), queue, events)

	msg, err := wire.Encode(models.DeadEvent("b"))
	require.NoError(t, err)

	d.NotifyMsg(msg)
	require.Len(t, events, 1)
	assert.Equal(t, models.DeadEvent("b"), <-events)

	// invalid payloads and a full queue are dropped without blocking
	d.NotifyMsg([]byte{0xc1})
	d.NotifyMsg(nil)
	d.NotifyMsg(msg)
	d.NotifyMsg(msg)
	assert.Len(t, events, 1)
}

func TestDelegateMetaAndBroadcasts(t *testing.T) {
	queue := &memberlist.TransmitLimitedQueue{
		NumNodes:       func() int { return 3 },
		RetransmitMult: 1,
	}
	d := newDelegate([]byte("meta"), queue, nil)

	assert.Equal(t, []byte("meta"), d.NodeMeta(memberlist.MetaMaxSize))
	assert.Nil(t, d.NodeMeta(2))

	queue.QueueBroadcast(&nodeBroadcast{node: "b", msg: []byte("dead b")})
	assert.Equal(t, [][]byte{[]byte("dead b")}, d.GetBroadcasts(0, 1024))
	assert.Nil(t, d.LocalState(true))
}
