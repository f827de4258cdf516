package strategies

import (
	"fmt"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/httpprobe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/mockprobe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/pingprobe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/tcpprobe"
)

type Settings struct {
	TCP  tcpprobe.Settings
	HTTP httpprobe.Settings
	Mock mockprobe.Settings
}

func NewFactory(name probe.StrategyName, settings Settings) (probe.Factory, error) {
	switch name {
	case probe.PingStrategy, "":
		return pingprobe.New, nil
	case probe.TCPStrategy:
		return tcpprobe.NewFactory(settings.TCP), nil
	case probe.HTTPStrategy:
		return httpprobe.NewFactory(settings.HTTP), nil
	case probe.MockStrategy:
		return mockprobe.NewFactory(settings.Mock), nil
	}
	return nil, fmt.Errorf("unknown probe strategy: %q", name)
}
