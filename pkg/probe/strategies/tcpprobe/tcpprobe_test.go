package tcpprobe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
)

func TestConnectSucceeds(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	client := NewFactory(Settings{})(l.Addr().String(), time.Second)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	err = New(Settings{}, addr, time.Second).Ping(context.Background())
	require.Error(t, err)
	assert.Equal(t, probe.FailureConnect, probe.Kind(err))
}
