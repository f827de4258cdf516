// Package shardserver answers shard pings on the shard ports of this node.
package shardserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/wire"
)

type Config struct {
	RequestsPerSecond float64       `envconfig:"SHARD_SERVER_RPS,default=100"`
	Burst             int           `envconfig:"SHARD_SERVER_BURST,default=10"`
	IdleTimeout       time.Duration `envconfig:"SHARD_SERVER_IDLE_TIMEOUT,default=10s"`
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 100,
		Burst:             10,
		IdleTimeout:       10 * time.Second,
	}
}

type Server struct {
	l        net.Listener
	cfg      Config
	logger   zerolog.Logger
	draining atomic.Bool
	wg       sync.WaitGroup
	stopped  chan struct{}
}

// Serve listens on address and answers pings for shard until ctx is
// cancelled or Close is called.
func Serve(ctx context.Context, shard models.ShardID, address string, cfg Config) (*Server, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen shard %d on %s: %w", shard, address, err)
	}
	s := &Server{
		l:       l,
		cfg:     cfg,
		stopped: make(chan struct{}),
		logger:  log.With().Int("shard", int(shard)).Str("addr", l.Addr().String()).Logger(),
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	go func() {
		defer close(s.stopped)
		defer cancel()
		for {
			c, err := l.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					s.logger.Error().Err(err).Msg("stop accepting shard connections")
				}
				return
			}
			s.logger.Debug().Msgf("accepted connection from %s", c.RemoteAddr())
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handle(ctx, c)
			}()
		}
	}()
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.l.Addr()
}

// SetDraining makes the server reject pings, peers then treat this shard as
// dead right away instead of waiting for their probes to time out.
func (s *Server) SetDraining(draining bool) {
	s.draining.Store(draining)
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst)
	for {
		if s.cfg.IdleTimeout > 0 {
			err := c.SetDeadline(time.Now().Add(s.cfg.IdleTimeout))
			if err != nil {
				return
			}
		}
		req := wire.ShardRequest{}
		err := wire.ReadFrame(c, &req)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug().Err(err).Msgf("closing connection from %s", c.RemoteAddr())
			}
			return
		}
		err = limiter.Wait(ctx)
		if err != nil {
			return
		}
		err = wire.WriteFrame(c, s.respond(req))
		if err != nil {
			s.logger.Debug().Err(err).Msgf("failed to answer %s", c.RemoteAddr())
			return
		}
	}
}

func (s *Server) respond(req wire.ShardRequest) wire.ShardResponse {
	if req.Type != wire.RequestPing {
		return wire.ShardResponse{
			Type:  wire.ResponseError,
			Error: fmt.Sprintf("unknown request type %d", req.Type),
		}
	}
	if s.draining.Load() {
		return wire.ShardResponse{
			Type:  wire.ResponseError,
			Error: "shard is shutting down",
		}
	}
	return wire.ShardResponse{Type: wire.ResponsePong}
}

// Close stops accepting and waits for open connections to finish.
func (s *Server) Close() error {
	err := s.l.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	<-s.stopped
	s.wg.Wait()
	return err
}
