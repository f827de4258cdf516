package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/repository/postgres"
)

type Config struct {
	DatabaseHost     string `envconfig:"DATABASE_HOST,default=127.0.0.1"`
	DatabaseUser     string `envconfig:"DATABASE_USER,default=postgres"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD,default=postgres"`
	DatabasePort     uint16 `envconfig:"DATABASE_PORT,default=5432"`
}

func main() {
	ctx := context.Background()

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

	err = r.Migrate(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate")
	}
	log.Info().Msg("journal schema is up to date")
}
