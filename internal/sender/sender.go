package sender

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/pgerror"
)

type JournalRepository interface {
	SaveNodeEvents(ctx context.Context, records []models.NodeHealthRecord) (int, error)
}

func NewSenderController(
	events <-chan models.NodeHealthRecord,
	repo JournalRepository,
	resendInterval time.Duration,
) *SenderControler {
	return &SenderControler{
		events:         events,
		repo:           repo,
		resendInterval: resendInterval,
		unsentGuard:    &sync.Mutex{},
		unsent:         make([]models.NodeHealthRecord, 0),
	}
}

// SenderControler stores death records produced by the shards. Records that
// could not be stored after retries wait for the next resend tick.
type SenderControler struct {
	events         <-chan models.NodeHealthRecord
	resendInterval time.Duration
	repo           JournalRepository
	unsentGuard    *sync.Mutex
	unsent         []models.NodeHealthRecord
}

func (c *SenderControler) Run(ctx context.Context) {
	ticker := time.NewTicker(c.resendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sendUnsentEvents(ctx)
		case event, ok := <-c.events:
			if !ok {
				return
			}
			err := retry.Do(
				func() error {
					_, err := c.repo.SaveNodeEvents(ctx, []models.NodeHealthRecord{event})
					return err
				},
				retry.Attempts(3),
				retry.Delay(10*time.Millisecond),
				retry.Context(ctx),
				retry.LastErrorOnly(true),
				retry.RetryIf(func(err error) bool {
					return !pgerror.IsPermanent(err)
				}),
			)
			if pgerror.IsPermanent(err) {
				log.Error().Err(err).Msgf("node %s event can not be saved, drop it", event.Node)
				continue
			}
			if err != nil {
				log.Error().Err(err).Msgf("failed to save node %s event, put it into unsent queue", event.Node)
				c.unsentGuard.Lock()
				c.unsent = append(c.unsent, event)
				c.unsentGuard.Unlock()
			}
		}
	}
}

func (c *SenderControler) Unsent() int {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()
	return len(c.unsent)
}

func (c *SenderControler) sendUnsentEvents(ctx context.Context) {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()

	if len(c.unsent) == 0 {
		return
	}
	done, err := c.repo.SaveNodeEvents(ctx, c.unsent)
	if err != nil {
		log.Warn().Err(err).Msgf("failed to save unsent node events: done %d", done)

		newUnsent := make([]models.NodeHealthRecord, 0, len(c.unsent)-done)
		bad, found := pgerror.FailedRecord(err)
		for i := done; i < len(c.unsent); i++ {
			if found && i == bad && pgerror.IsPermanent(err) {
				log.Error().Err(err).Msgf("drop node %s event", c.unsent[i].Node)
				continue
			}
			newUnsent = append(newUnsent, c.unsent[i])
		}
		c.unsent = newUnsent
		return
	}
	c.unsent = c.unsent[:0]
}
