package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/repository/postgres"
)

type Config struct {
	DatabaseHost     string `envconfig:"DATABASE_HOST,default=127.0.0.1"`
	DatabaseUser     string `envconfig:"DATABASE_USER,default=postgres"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD,default=postgres"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT,default=5432"`
}

// deaths <node> [limit] prints the latest journaled deaths of a node.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: deaths <node> [limit]")
		os.Exit(2)
	}
	limit := uint64(20)
	if len(os.Args) > 2 {
		parsed, err := strconv.ParseUint(os.Args[2], 10, 64)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid limit")
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Config{}
	err := envconfig.Init(&cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read config")
	}
	r, err := postgres.NewRepo(ctx, cfg.DatabaseUser, cfg.DatabasePassword, cfg.DatabaseHost, cfg.DatabasePort)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer r.Close()

	records, err := r.GetNodeEvents(ctx, models.NodeID(os.Args[1]), limit)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read journal")
	}
	for _, rec := range records {
		fmt.Printf(
			"%s %s %s by %s/shard %d (%s)\n",
			rec.DetectedAt.Format(time.RFC3339Nano),
			rec.Node,
			rec.Status,
			rec.Reporter,
			rec.Shard,
			rec.ID,
		)
	}
}
