package mockprobe

import (
	"context"
	"time"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
)

type Settings struct {
	Duration time.Duration
	// Fail makes every ping end with a rejection.
	Fail bool
}

type MockProbe struct {
	address  string
	duration time.Duration
	fail     bool
}

func NewFactory(settings Settings) probe.Factory {
	return func(address string, _ time.Duration) probe.Client {
		return &MockProbe{
			address:  address,
			duration: settings.Duration,
			fail:     settings.Fail,
		}
	}
}

func (p *MockProbe) Address() string {
	return p.address
}

func (p *MockProbe) Ping(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return probe.Wrap(p.address, ctx.Err())
	case <-time.After(p.duration):
	}
	if p.fail {
		return probe.Wrap(p.address, probe.ErrRejected)
	}
	return nil
}
