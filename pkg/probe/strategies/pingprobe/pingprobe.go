package pingprobe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/wire"
)

// RemoteShardConnection pings a remote shard over the shard wire protocol.
// Every Ping dials a fresh connection.
type RemoteShardConnection struct {
	address string
	timeout time.Duration
	dialer  net.Dialer
}

func New(address string, timeout time.Duration) probe.Client {
	return &RemoteShardConnection{
		address: address,
		timeout: timeout,
		dialer: net.Dialer{
			Timeout:   timeout,
			KeepAlive: -1,
		},
	}
}

func (c *RemoteShardConnection) Address() string {
	return c.address
}

func (c *RemoteShardConnection) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return probe.Wrap(c.address, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	err = conn.SetDeadline(deadline)
	if err != nil {
		return probe.Wrap(c.address, err)
	}

	err = wire.WriteFrame(conn, wire.ShardRequest{Type: wire.RequestPing})
	if err != nil {
		return probe.Wrap(c.address, err)
	}
	resp := wire.ShardResponse{}
	err = wire.ReadFrame(conn, &resp)
	if err != nil {
		return probe.Wrap(c.address, err)
	}
	switch resp.Type {
	case wire.ResponsePong:
		return nil
	case wire.ResponseError:
		return probe.Wrap(c.address, fmt.Errorf("%w: %s", probe.ErrRejected, resp.Error))
	}
	return probe.Wrap(c.address, fmt.Errorf("%w: unexpected response type %d", probe.ErrRejected, resp.Type))
}
