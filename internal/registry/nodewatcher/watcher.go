// Package nodewatcher feeds node registry changes from the CDC topic of the
// nodes table into the coordinator.
package nodewatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/coordinator"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

type Coordinator interface {
	HandleNodeEvents(ctx context.Context, nodeEvents []coordinator.NodeEvent) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type NodeWatcher struct {
	msgReader messageReader
	crd       Coordinator
}

func NewNodeWatcher(nodeID string, addr string, topic string, crd Coordinator) *NodeWatcher {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{addr},
		Topic:       topic,
		MaxBytes:    10 * 1024 * 1024,
		GroupID:     nodeID,
		StartOffset: kafka.LastOffset,
	})
	return &NodeWatcher{
		msgReader: reader,
		crd:       crd,
	}
}

func (w *NodeWatcher) RunNodeWatcher(ctx context.Context) error {
	for {
		msg, err := w.msgReader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return err
			}
			log.Error().Err(err).Msg("failed to fetch node event")
			continue
		}
		w.handleMessage(ctx, msg)
	}
}

func (w *NodeWatcher) handleMessage(ctx context.Context, msg kafka.Message) {
	event, err := parseNodeEvent(msg.Value)
	if err != nil {
		log.Error().Err(err).Msgf("skip node event at offset %d", msg.Offset)
		w.commit(ctx, msg)
		return
	}
	if event.Operation == coordinator.Unknown {
		w.commit(ctx, msg)
		return
	}
	log.Info().Msgf("parsed cdc event: type=%d on node %+v", event.Operation, event.Node)

	err = w.crd.HandleNodeEvents(ctx, []coordinator.NodeEvent{event})
	if err != nil {
		// not committed, the event is fetched again after a rebalance
		log.Error().Err(err).Msgf("failed to handle node event op %d: %s", event.Operation, event.Node.Name)
		return
	}
	w.commit(ctx, msg)
}

func (w *NodeWatcher) commit(ctx context.Context, msg kafka.Message) {
	err := w.msgReader.CommitMessages(ctx, msg)
	if err != nil {
		log.Error().Err(err).Msg("failed to commit message: it will doubled")
	}
}

// parseNodeEvent decodes a Debezium change event. Tombstones and operations
// other than c/r/u/d give an event with the Unknown operation.
func parseNodeEvent(value []byte) (coordinator.NodeEvent, error) {
	if len(value) == 0 {
		return coordinator.NodeEvent{}, nil
	}
	gomsg := Value[NodeDto]{}
	err := json.Unmarshal(value, &gomsg)
	if err != nil {
		return coordinator.NodeEvent{}, fmt.Errorf("failed to decode message from json: %w", err)
	}

	var (
		event = coordinator.NodeEvent{Timestamp: time.UnixMilli(gomsg.TsMs)}
		row   *NodeDto
	)
	switch gomsg.Op {
	case "c", "r":
		event.Operation = coordinator.Create
		row = gomsg.After
	case "u":
		event.Operation = coordinator.Update
		row = gomsg.After
	case "d":
		event.Operation = coordinator.Delete
		row = gomsg.Before
	default:
		return event, nil
	}
	if row == nil || row.Name == "" {
		return coordinator.NodeEvent{}, fmt.Errorf("%q event without node row", gomsg.Op)
	}
	node, err := row.ToModel()
	if err != nil {
		return coordinator.NodeEvent{}, err
	}
	event.Node = node
	return event, nil
}

func (d NodeDto) ToModel() (models.Node, error) {
	node := models.Node{
		Name:       models.NodeID(d.Name),
		IP:         d.IP,
		ShardPorts: make([]uint16, 0, len(d.ShardPorts)),
	}
	for _, port := range d.ShardPorts {
		if port <= 0 || port > 65535 {
			return models.Node{}, fmt.Errorf("node %s has invalid shard port %d", d.Name, port)
		}
		node.ShardPorts = append(node.ShardPorts, uint16(port))
	}
	if d.GossipPort < 0 || d.GossipPort > 65535 {
		return models.Node{}, fmt.Errorf("node %s has invalid gossip port %d", d.Name, d.GossipPort)
	}
	node.GossipPort = uint16(d.GossipPort)
	return node, nil
}

func (w *NodeWatcher) Close() error {
	return w.msgReader.Close()
}
