package sender

import (
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
)

// Journal is the producer side of the death journal. A nil *Journal drops
// everything, which is what a node without a database gets.
type Journal struct {
	reporter models.NodeID
	events   chan models.NodeHealthRecord
}

func NewJournal(reporter models.NodeID, buf int) *Journal {
	return &Journal{
		reporter: reporter,
		events:   make(chan models.NodeHealthRecord, buf),
	}
}

func (j *Journal) Events() <-chan models.NodeHealthRecord {
	return j.events
}

// NotifyNodeDead enqueues a record without waiting, a full queue drops it.
func (j *Journal) NotifyNodeDead(shard models.ShardID, node models.NodeID) {
	if j == nil {
		return
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		log.Error().Err(err).Msgf("failed to generate journal record id for node %s", node)
		return
	}
	record := models.NodeHealthRecord{
		ID:         id,
		Node:       node,
		Reporter:   j.reporter,
		Shard:      shard,
		Status:     models.GossipEventDead,
		DetectedAt: time.Now().UTC(),
	}
	select {
	case j.events <- record:
	default:
		log.Warn().Msgf("journal queue is full, drop node %s death record", node)
	}
}
