package notifyer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

var ErrClosed = errors.New("shard notifyer closed")

// ShardNotifyer delivers shard messages between the shards of one node,
// each shard owns one buffered inbox.
type ShardNotifyer struct {
	inboxes []chan models.ShardMessage
	closed  atomic.Bool
	close   chan struct{}
}

func NewNotifier(shards int, buf int) *ShardNotifyer {
	inboxes := make([]chan models.ShardMessage, shards)
	for i := range inboxes {
		inboxes[i] = make(chan models.ShardMessage, buf)
	}
	return &ShardNotifyer{
		inboxes: inboxes,
		close:   make(chan struct{}),
	}
}

func (n *ShardNotifyer) Shards() int {
	return len(n.inboxes)
}

func (n *ShardNotifyer) Inbox(id models.ShardID) <-chan models.ShardMessage {
	return n.inboxes[id]
}

// Done is closed by Close. Inboxes themselves are never closed.
func (n *ShardNotifyer) Done() <-chan struct{} {
	return n.close
}

// Broadcast delivers msg to every shard except msg.From. It never waits for
// a slow shard: a full inbox is reported in the returned error while the
// other shards still get the message.
func (n *ShardNotifyer) Broadcast(ctx context.Context, msg models.ShardMessage) error {
	if n.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for id, inbox := range n.inboxes {
		if models.ShardID(id) == msg.From {
			continue
		}
		select {
		case <-n.close:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case inbox <- msg:
		default:
			errs = append(errs, fmt.Errorf("shard %d inbox is full", id))
		}
	}
	return errors.Join(errs...)
}

func (n *ShardNotifyer) Close() {
	if n.closed.Swap(true) {
		return
	}
	close(n.close)
}
