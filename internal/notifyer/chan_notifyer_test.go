package notifyer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

func TestBroadcastSkipsSender(t *testing.T) {
	n := NewNotifier(3, 4)
	msg := models.GossipShardMessage(1, models.DeadEvent("b"))

	require.NoError(t, n.Broadcast(context.Background(), msg))

	assert.Len(t, n.Inbox(0), 1)
	assert.Len(t, n.Inbox(1), 0)
	assert.Len(t, n.Inbox(2), 1)

	got := <-n.Inbox(2)
	assert.Equal(t, models.NodeID("b"), got.Event.Gossip.Node)
}

func TestBroadcastFromOutsideReachesAll(t *testing.T) {
	n := NewNotifier(2, 1)

	require.NoError(t, n.Broadcast(context.Background(), models.GossipShardMessage(models.ExternalShard, models.DeadEvent("b"))))
	assert.Len(t, n.Inbox(0), 1)
	assert.Len(t, n.Inbox(1), 1)
}

func TestBroadcastFullInbox(t *testing.T) {
	n := NewNotifier(3, 1)
	msg := models.GossipShardMessage(0, models.DeadEvent("b"))
	require.NoError(t, n.Broadcast(context.Background(), msg))

	<-n.Inbox(2)
	err := n.Broadcast(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard 1 inbox is full")
	assert.NotContains(t, err.Error(), "shard 2")
	assert.Len(t, n.Inbox(2), 1)
}

func TestBroadcastAfterClose(t *testing.T) {
	n := NewNotifier(2, 1)
	n.Close()
	n.Close()

	err := n.Broadcast(context.Background(), models.GossipShardMessage(0, models.DeadEvent("b")))
	assert.ErrorIs(t, err, ErrClosed)
}
