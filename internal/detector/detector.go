// Package detector runs the shard-local failure detector: every interval it
// pings one random peer shard and, when the ping fails, declares the peer
// dead and tells both the local shards and the cluster about it.
package detector

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
)

// Shard is the owning shard context of a detector.
type Shard interface {
	ID() models.ShardID
	// Nodes returns a detached snapshot of the known peers.
	Nodes() []models.Node
	// HandleDeadNode updates the shard's own view of the cluster, it must be
	// done before anyone else is told about the death.
	HandleDeadNode(ctx context.Context, name models.NodeID)
	BroadcastMessageToLocalShards(ctx context.Context, msg models.ShardMessage) error
	Gossip(ctx context.Context, event models.GossipEvent) error
}

type Option func(d *Detector)

// WithRand sets the randomness source used for peer and port selection.
func WithRand(rnd *rand.Rand) Option {
	return func(d *Detector) {
		d.rnd = rnd
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

type Detector struct {
	shard   Shard
	connect probe.Factory
	cfg     Config

	rnd     *rand.Rand
	metrics metrics.Metrics
	logger  zerolog.Logger
}

func New(shard Shard, connect probe.Factory, cfg Config, opts ...Option) (*Detector, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid failure detector config: %w", err)
	}
	if shard == nil || connect == nil {
		return nil, fmt.Errorf("failure detector needs both shard and probe factory")
	}
	d := &Detector{
		shard:   shard,
		connect: connect,
		cfg:     cfg,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		metrics: metrics.Nop{},
		logger:  log.With().Int("shard", int(shard.ID())).Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run sleeps for the detection interval and then runs one detection round,
// forever. The sleep is not compensated for the round duration. Run returns
// nil once ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	err := d.cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid failure detector config: %w", err)
	}
	timer := time.NewTimer(d.cfg.FailureDetectionInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		d.detect(ctx)
		timer.Reset(d.cfg.FailureDetectionInterval)
	}
}

// Spawn starts the detector in its own goroutine. The returned channel
// receives the result of Run exactly once.
func Spawn(ctx context.Context, d *Detector) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)

		err := d.runGuarded(ctx)
		if err != nil {
			d.logger.Error().Err(err).Msg("failure detector stopped")
		}
		result <- err
	}()
	return result
}

func (d *Detector) runGuarded(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failure detector panicked: %v", r)
		}
	}()
	return d.Run(ctx)
}

func (d *Detector) detect(ctx context.Context) {
	node, addr, ok := pickTarget(d.shard.Nodes(), d.rnd)
	if !ok {
		return
	}
	client := d.connect(addr, d.cfg.RemoteShardConnectTimeout)

	pingCtx, cancel := context.WithTimeout(ctx, d.cfg.RemoteShardConnectTimeout)
	start := time.Now()
	err := client.Ping(pingCtx)
	cancel()
	d.metrics.Duration("failure_detector.probe.duration", time.Since(start))

	if classify(err) == peerAlive {
		d.metrics.Increment("failure_detector.probe.ok")
		return
	}
	if ctx.Err() != nil {
		// shutting down, the ping was cut by us and not by the peer
		return
	}
	d.metrics.Increment("failure_detector.probe.fail." + probe.Kind(err).String())
	d.disseminate(ctx, node, client.Address(), err)
}
