// Package etcdwatcher keeps the node registry in sync with node records
// stored under an etcd prefix, and registers the local node there.
package etcdwatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/coordinator"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/registry/nodewatcher"
)

type Coordinator interface {
	HandleNodeEvents(ctx context.Context, nodeEvents []coordinator.NodeEvent) error
}

type NodeWatcher struct {
	prefix string
	etcd   *clientv3.Client
	crd    Coordinator
}

func NewNodeWatcher(endpoints []string, prefix string, crd Coordinator) (*NodeWatcher, error) {
	clnt, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &NodeWatcher{
		prefix: strings.TrimSuffix(prefix, "/") + "/",
		etcd:   clnt,
		crd:    crd,
	}, nil
}

// Register stores the local node under the prefix bound to a lease, the
// record disappears ttl after the node stops keeping it alive.
func (w *NodeWatcher) Register(ctx context.Context, self models.Node, ttl time.Duration) error {
	value, err := json.Marshal(toDto(self))
	if err != nil {
		return fmt.Errorf("failed to marshal node record: %w", err)
	}
	lease, err := w.etcd.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	_, err = w.etcd.Put(ctx, w.key(self.Name), string(value), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to put node record: %w", err)
	}
	keepAlive, err := w.etcd.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}
	go func() {
		for range keepAlive {
		}
		log.Warn().Msgf("node record %s lease is not kept alive anymore", w.key(self.Name))
	}()
	return nil
}

// RunNodeWatcher loads the current records and then follows changes until
// ctx is cancelled.
func (w *NodeWatcher) RunNodeWatcher(ctx context.Context) error {
	resp, err := w.etcd.Get(ctx, w.prefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("failed to load node records: %w", err)
	}
	initial := make([]*clientv3.Event, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		initial = append(initial, &clientv3.Event{Type: clientv3.EventTypePut, Kv: kv})
	}
	err = w.handle(ctx, initial)
	if err != nil {
		log.Error().Err(err).Msg("failed to apply initial node records")
	}

	var (
		lastRevision = resp.Header.Revision
		logger       = log.With().Str("prefix", w.prefix).Logger()
	)
	ctx = clientv3.WithRequireLeader(ctx)
	watch := func(rev int64) clientv3.WatchChan {
		return w.etcd.Watch(ctx, w.prefix, clientv3.WithRev(rev+1), clientv3.WithPrefix(), clientv3.WithPrevKV())
	}
	watcherChan := watch(lastRevision)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcherChan:
			if !ok {
				logger.Info().Msg("watcher channel closed")
				return nil
			}
			if event.Canceled {
				logger.Error().Err(event.Err()).Msg("watcher failure: canceled, retry")
				watcherChan = watch(lastRevision)
				continue
			}
			if event.Err() != nil {
				logger.Error().Err(event.Err()).Msg("got unexpected watch error")
				continue
			}
			lastRevision = event.Header.Revision
			err := w.handle(ctx, event.Events)
			if err != nil {
				logger.Error().Err(err).Msg("handler error, skip")
			}
		}
	}
}

func (w *NodeWatcher) handle(ctx context.Context, events []*clientv3.Event) error {
	nodeEvents, err := w.toNodeEvents(events)
	if len(nodeEvents) != 0 {
		err = errors.Join(err, w.crd.HandleNodeEvents(ctx, nodeEvents))
	}
	return err
}

// toNodeEvents converts watch events, broken records are reported and
// skipped.
func (w *NodeWatcher) toNodeEvents(events []*clientv3.Event) ([]coordinator.NodeEvent, error) {
	var (
		errs   []error
		result = make([]coordinator.NodeEvent, 0, len(events))
	)
	for _, event := range events {
		if event.Kv == nil {
			continue
		}
		name := strings.TrimPrefix(string(event.Kv.Key), w.prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		switch event.Type {
		case clientv3.EventTypeDelete:
			result = append(result, coordinator.NodeEvent{
				Operation: coordinator.Delete,
				Node:      models.Node{Name: models.NodeID(name)},
			})
		case clientv3.EventTypePut:
			dto := nodewatcher.NodeDto{}
			err := json.Unmarshal(event.Kv.Value, &dto)
			if err != nil {
				errs = append(errs, fmt.Errorf("node record %s: %w", name, err))
				continue
			}
			dto.Name = name
			node, err := dto.ToModel()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			op := coordinator.Update
			if event.IsCreate() {
				op = coordinator.Create
			}
			result = append(result, coordinator.NodeEvent{Operation: op, Node: node})
		}
	}
	return result, errors.Join(errs...)
}

func (w *NodeWatcher) key(name models.NodeID) string {
	return path.Join(w.prefix, name.String())
}

func toDto(node models.Node) nodewatcher.NodeDto {
	dto := nodewatcher.NodeDto{
		Name:       node.Name.String(),
		IP:         node.IP,
		ShardPorts: make([]int, 0, len(node.ShardPorts)),
		GossipPort: int(node.GossipPort),
	}
	for _, port := range node.ShardPorts {
		dto.ShardPorts = append(dto.ShardPorts, int(port))
	}
	return dto
}

func (w *NodeWatcher) Close() error {
	return w.etcd.Close()
}
