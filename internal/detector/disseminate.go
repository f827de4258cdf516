package detector

import (
	"context"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

// disseminate reports the death of node: first to the owning shard, then to
// the other local shards and to the cluster. The two broadcasts are best
// effort and independent of each other.
func (d *Detector) disseminate(ctx context.Context, node models.Node, addr string, cause error) {
	d.shard.HandleDeadNode(ctx, node.Name)
	d.metrics.Increment("failure_detector.dead")

	d.logger.Info().Err(cause).Msgf("notifying cluster that we failed to ping '%s' (%s)", node.Name, addr)

	event := models.DeadEvent(node.Name)

	err := d.shard.BroadcastMessageToLocalShards(ctx, models.GossipShardMessage(d.shard.ID(), event))
	if err != nil {
		d.metrics.Increment("failure_detector.broadcast.error")
		d.logger.Error().Err(err).Msgf("failed to broadcast to local shards, node %s death event", node.Name)
	}

	err = d.shard.Gossip(ctx, event)
	if err != nil {
		d.metrics.Increment("failure_detector.gossip.error")
		d.logger.Error().Err(err).Msgf("failed to gossip node %s death event", node.Name)
	}
}
