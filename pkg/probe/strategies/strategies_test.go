package strategies

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/mockprobe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/pingprobe"
)

func TestNewFactory(t *testing.T) {
	for _, name := range []probe.StrategyName{"", probe.PingStrategy, probe.TCPStrategy, probe.HTTPStrategy, probe.MockStrategy} {
		factory, err := NewFactory(name, Settings{})
		require.NoError(t, err, name)
		client := factory("127.0.0.1:7000", time.Second)
		assert.Equal(t, "127.0.0.1:7000", client.Address())
	}

	factory, err := NewFactory("", Settings{})
	require.NoError(t, err)
	assert.IsType(t, &pingprobe.RemoteShardConnection{}, factory("127.0.0.1:7000", time.Second))

	_, err = NewFactory("icmp", Settings{})
	assert.Error(t, err)
}

func TestMockStrategy(t *testing.T) {
	factory, err := NewFactory(probe.MockStrategy, Settings{Mock: mockprobe.Settings{Fail: true}})
	require.NoError(t, err)

	err = factory("b:7000", time.Second).Ping(context.Background())
	assert.ErrorIs(t, err, probe.ErrRejected)
}
