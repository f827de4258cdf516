package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/shardserver"
)

// testserver <port> answers shard pings until interrupted.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: testserver <port>")
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv, err := shardserver.Serve(ctx, 0, fmt.Sprintf("0.0.0.0:%s", os.Args[1]), shardserver.DefaultConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start shard server")
	}
	log.Info().Msgf("answering shard pings on %s", srv.Addr())

	<-ctx.Done()
	_ = srv.Close()
}
