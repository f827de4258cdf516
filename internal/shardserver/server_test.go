package shardserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/pingprobe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/wire"
)

func TestServerAnswersPings(t *testing.T) {
	s, err := Serve(context.Background(), 0, "127.0.0.1:0", DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	client := pingprobe.New(s.Addr().String(), time.Second)
	for range 3 {
		require.NoError(t, client.Ping(context.Background()))
	}

	s.SetDraining(true)
	err = client.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, probe.ErrRejected)

	s.SetDraining(false)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestServerKeepsConnectionOpen(t *testing.T) {
	s, err := Serve(context.Background(), 1, "127.0.0.1:0", DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(time.Second)))

	for _, tt := range []struct {
		req      wire.RequestType
		expected wire.ResponseType
	}{
		{req: wire.RequestPing, expected: wire.ResponsePong},
		{req: wire.RequestUnknown, expected: wire.ResponseError},
		{req: wire.RequestPing, expected: wire.ResponsePong},
	} {
		require.NoError(t, wire.WriteFrame(conn, wire.ShardRequest{Type: tt.req}))
		resp := wire.ShardResponse{}
		require.NoError(t, wire.ReadFrame(conn, &resp))
		assert.Equal(t, tt.expected, resp.Type)
	}
}

func TestServerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := Serve(ctx, 0, "127.0.0.1:0", DefaultConfig())
	require.NoError(t, err)

	idle, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer idle.Close()

	cancel()

	closed := make(chan error)
	go func() { closed <- s.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not close idle connections")
	}

	err = pingprobe.New(s.Addr().String(), 200*time.Millisecond).Ping(context.Background())
	assert.Error(t, err)
}
