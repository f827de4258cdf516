package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies"
)

// pingshard <addr> [strategy] [timeout]
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: pingshard <addr> [ping|tcp|http|mock] [timeout]")
		os.Exit(2)
	}
	var (
		addr     = os.Args[1]
		strategy = probe.PingStrategy
		timeout  = time.Second
	)
	if len(os.Args) > 2 {
		strategy = probe.StrategyName(os.Args[2])
	}
	if len(os.Args) > 3 {
		parsed, err := time.ParseDuration(os.Args[3])
		if err != nil {
			log.Fatal().Err(err).Msg("invalid timeout")
		}
		timeout = parsed
	}

	connect, err := strategies.NewFactory(strategy, strategies.Settings{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to choose probe strategy")
	}

	start := time.Now()
	err = connect(addr, timeout).Ping(context.Background())
	if err != nil {
		log.Error().Err(err).Msgf("%s is dead (%s) after %s", addr, probe.Kind(err), time.Since(start))
		os.Exit(1)
	}
	log.Info().Msgf("%s is alive, answered in %s", addr, time.Since(start))
}
