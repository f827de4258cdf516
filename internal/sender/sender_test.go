package sender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/pgerror"
)

type fakeRepo struct {
	mu       sync.Mutex
	failures int
	saved    []models.NodeHealthRecord
	calls    int
}

func (r *fakeRepo) SaveNodeEvents(_ context.Context, records []models.NodeHealthRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("db is down")
	}
	r.saved = append(r.saved, records...)
	return len(records), nil
}

func (r *fakeRepo) getSaved() []models.NodeHealthRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.NodeHealthRecord(nil), r.saved...)
}

func TestJournalRecords(t *testing.T) {
	j := NewJournal("self", 1)
	j.NotifyNodeDead(2, "b")
	j.NotifyNodeDead(2, "c")

	require.Len(t, j.Events(), 1)
	rec := <-j.Events()
	assert.Equal(t, models.NodeID("b"), rec.Node)
	assert.Equal(t, models.NodeID("self"), rec.Reporter)
	assert.Equal(t, models.ShardID(2), rec.Shard)
	assert.Equal(t, models.GossipEventDead, rec.Status)
	assert.Len(t, rec.ID, 36)

	var nilJournal *Journal
	nilJournal.NotifyNodeDead(0, "b")
}

func TestSenderRetriesThenSaves(t *testing.T) {
	repo := &fakeRepo{failures: 2}
	j := NewJournal("self", 4)
	c := NewSenderController(j.Events(), repo, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	j.NotifyNodeDead(0, "b")
	require.Eventually(t, func() bool {
		return len(repo.getSaved()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Unsent())
}

func TestSenderResendsUnsent(t *testing.T) {
	repo := &fakeRepo{failures: 3}
	j := NewJournal("self", 4)
	c := NewSenderController(j.Events(), repo, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	j.NotifyNodeDead(0, "b")
	require.Eventually(t, func() bool {
		saved := repo.getSaved()
		return len(saved) == 1 && saved[0].Node == "b"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Unsent())
}

type rejectingRepo struct {
	fakeRepo
	reject models.NodeID
}

func (r *rejectingRepo) SaveNodeEvents(ctx context.Context, records []models.NodeHealthRecord) (int, error) {
	for i, rec := range records {
		if rec.Node == r.reject {
			r.mu.Lock()
			r.calls++
			r.mu.Unlock()
			// the batch is one transaction, nothing before the bad record is kept
			return 0, &pgerror.RecordError{
				Index: i,
				Err:   fmt.Errorf("insert: %w", &pgconn.PgError{Code: "22P02"}),
			}
		}
	}
	return r.fakeRepo.SaveNodeEvents(ctx, records)
}

func TestSenderDropsPermanentFailures(t *testing.T) {
	repo := &rejectingRepo{reject: "bad"}
	j := NewJournal("self", 4)
	c := NewSenderController(j.Events(), repo, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	j.NotifyNodeDead(0, "bad")
	j.NotifyNodeDead(0, "b")
	require.Eventually(t, func() bool {
		return len(repo.getSaved()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, c.Unsent())
	repo.mu.Lock()
	// one call for the dropped record, one for the saved one
	assert.Equal(t, 2, repo.calls)
	repo.mu.Unlock()
}

func TestResendKeepsRecordsBeforeRejectedOne(t *testing.T) {
	repo := &rejectingRepo{reject: "bad"}
	c := NewSenderController(nil, repo, time.Hour)
	c.unsent = []models.NodeHealthRecord{
		{ID: "1", Node: "a"},
		{ID: "2", Node: "bad"},
		{ID: "3", Node: "c"},
	}

	c.sendUnsentEvents(context.Background())
	assert.Empty(t, repo.getSaved())
	require.Equal(t, 2, c.Unsent())

	c.sendUnsentEvents(context.Background())
	saved := repo.getSaved()
	require.Len(t, saved, 2)
	assert.Equal(t, models.NodeID("a"), saved[0].Node)
	assert.Equal(t, models.NodeID("c"), saved[1].Node)
	assert.Equal(t, 0, c.Unsent())
}

func TestResendKeepsEverythingOnTransientFailure(t *testing.T) {
	repo := &fakeRepo{failures: 1}
	c := NewSenderController(nil, repo, time.Hour)
	c.unsent = []models.NodeHealthRecord{{ID: "1", Node: "a"}, {ID: "2", Node: "b"}}

	c.sendUnsentEvents(context.Background())
	assert.Equal(t, 2, c.Unsent())

	c.sendUnsentEvents(context.Background())
	assert.Len(t, repo.getSaved(), 2)
	assert.Equal(t, 0, c.Unsent())
}
