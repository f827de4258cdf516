package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/pgerror"
)

const (
	eventsTable   = "node_health_events"
	schemaVersion = 1
)

const schema = `
create table if not exists node_health_events (
	id          uuid primary key,
	node        text not null,
	reporter    text not null,
	shard       integer not null,
	status      smallint not null,
	detected_at timestamptz not null,
	created_at  timestamptz not null default now()
);
create index if not exists node_health_events_node_idx on node_health_events (node, detected_at desc);
`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepo(ctx context.Context, user, password, addr string, port uint16) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=postgres sslmode=disable pool_max_conns=4",
			user, password, addr, port,
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Repository{
		db: pool,
	}, nil
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply schema v%d: %w", schemaVersion, err)
	}
	return nil
}

// SaveNodeEvents inserts records in one batch and returns how many of them
// are stored. The batch runs in one implicit transaction: on error nothing is
// stored, 0 is returned and the error is a *pgerror.RecordError pointing at
// the failed record. Records are keyed by id and a record that is already
// stored counts as saved.
func (r *Repository) SaveNodeEvents(ctx context.Context, records []models.NodeHealthRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	sql := `
	insert into node_health_events (id, node, reporter, shard, status, detected_at)
	values ($1::uuid, $2, $3, $4, $5, $6)
	on conflict (id) do nothing;
	`
	b := pgx.Batch{}
	for _, rec := range records {
		b.Queue(
			sql,
			rec.ID,
			rec.Node.String(),
			rec.Reporter.String(),
			int(rec.Shard),
			int16(rec.Status),
			rec.DetectedAt,
		)
	}
	result := r.db.SendBatch(ctx, &b)
	defer result.Close()

	for i, rec := range records {
		tag, err := result.Exec()
		if err != nil {
			violation, ok := pgerror.AsViolation(err)
			if ok {
				err = fmt.Errorf("node event %s violates %s constraint %q: %w", rec.ID, violation.Kind, violation.Constraint, err)
			} else {
				err = fmt.Errorf("failed to save node event %s: %w", rec.ID, err)
			}
			return 0, &pgerror.RecordError{Index: i, Err: err}
		}
		if tag.RowsAffected() == 0 {
			log.Warn().Msgf("node event %s already saved, skip it", rec.ID)
		}
	}
	return len(records), nil
}

func (r *Repository) GetNodeEvents(ctx context.Context, node models.NodeID, limit uint64) ([]models.NodeHealthRecord, error) {
	sql, args, err := squirrel.Select(
		"id::text",
		"node",
		"reporter",
		"shard",
		"status",
		"detected_at",
	).From(eventsTable).
		Where(squirrel.Eq{"node": node.String()}).
		OrderBy("detected_at desc").
		Limit(limit).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to create db request: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result := make([]models.NodeHealthRecord, 0, limit)
	for rows.Next() {
		var (
			rec            models.NodeHealthRecord
			name, reporter string
			shard          int
			status         int16
		)
		err = rows.Scan(
			&rec.ID,
			&name,
			&reporter,
			&shard,
			&status,
			&rec.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node event: %w", err)
		}
		rec.Node = models.NodeID(name)
		rec.Reporter = models.NodeID(reporter)
		rec.Shard = models.ShardID(shard)
		rec.Status = models.GossipEventType(status)
		result = append(result, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read node events: %w", err)
	}
	return result, nil
}

func (r *Repository) Close() {
	r.db.Close()
}
