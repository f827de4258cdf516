package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vrischmann/envconfig"

	"github.com/Sh00ty/cloud-nlb/shard-node/internal/consistent"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/coordinator"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/detector"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/memberlist"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/metrics"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/models"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/notifyer"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/registry"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/registry/etcdwatcher"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/registry/nodewatcher"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/repository/postgres"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/sender"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/shard"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/sharder"
	"github.com/Sh00ty/cloud-nlb/shard-node/internal/shardserver"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies"
	"github.com/Sh00ty/cloud-nlb/shard-node/pkg/probe/strategies/httpprobe"
)

func loggerLevelFromString(level string) zerolog.Level {
	level = strings.ToLower(level)
	switch level {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "info":
		return zerolog.InfoLevel
	case "debug":
		return zerolog.DebugLevel
	}
	return zerolog.WarnLevel
}

type Config struct {
	NodeName    string `envconfig:"NODE_NAME"`
	NodeIP      string `envconfig:"NODE_IP"`
	LoggerLevel string `envconfig:"LOGGER_LEVEL,optional"`

	ShardBindAddr     string `envconfig:"SHARD_BIND_ADDR,default=0.0.0.0"`
	ShardPorts        []int  `envconfig:"SHARD_PORTS"`
	ShardInboxSize    int    `envconfig:"SHARD_INBOX_SIZE,default=256"`
	ReplicationFactor uint16 `envconfig:"SHARD_REPLICATION_FACTOR,default=1"`
	ProbeStrategy     string `envconfig:"PROBE_STRATEGY,default=ping"`
	HTTPProbePath     string `envconfig:"HTTP_PROBE_PATH,optional"`

	StatsdAddr   string `envconfig:"STATSD_ADDR,optional"`
	StatsdPrefix string `envconfig:"STATSD_PREFIX,default=shardnode."`

	DatabaseHost     string        `envconfig:"DATABASE_HOST,optional"`
	DatabaseUser     string        `envconfig:"DATABASE_USER,optional"`
	DatabasePassword string        `envconfig:"DATABASE_PASSWORD,optional"`
	DatabasePort     uint16        `envconfig:"DATABASE_PORT,default=5432"`
	JournalBuffer    int           `envconfig:"JOURNAL_BUFFER,default=1024"`
	ResendInterval   time.Duration `envconfig:"JOURNAL_RESEND_INTERVAL,default=5s"`

	EtcdEndpoints []string      `envconfig:"ETCD_ENDPOINTS,optional"`
	EtcdPrefix    string        `envconfig:"ETCD_NODES_PREFIX,default=/shard-nodes"`
	EtcdLeaseTTL  time.Duration `envconfig:"ETCD_LEASE_TTL,default=10s"`

	QueueAddr  string `envconfig:"QUEUE_ADDR,optional"`
	QueueTopic string `envconfig:"QUEUE_NODE_UPDATES_TOPIC,default=dbserver1.public.nodes"`

	HealthAddr string `envconfig:"HEALTH_ADDR,default=0.0.0.0:8080"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	appCfg := Config{}
	err := envconfig.Init(&appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read app config")
	}
	log.Logger = log.Level(loggerLevelFromString(appCfg.LoggerLevel))

	memberListCfg := memberlist.Config{}
	err = envconfig.Init(&memberListCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read memberlist config")
	}
	detectorCfg := detector.Config{}
	err = envconfig.Init(&detectorCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read failure detector config")
	}
	serverCfg := shardserver.Config{}
	err = envconfig.Init(&serverCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read shard server config")
	}

	self, err := localNode(appCfg, memberListCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid local node")
	}
	log.Warn().Msgf("running node %s with shard ports %v", self.Name, self.ShardPorts)

	var mtr metrics.Metrics = metrics.Nop{}
	if appCfg.StatsdAddr != "" {
		statsd := metrics.NewStatsd(self.Name.String(), appCfg.StatsdPrefix, appCfg.StatsdAddr)
		defer statsd.Close()
		mtr = statsd
	}

	journal := startJournal(ctx, appCfg, self.Name)

	bus := notifyer.NewNotifier(len(self.ShardPorts), appCfg.ShardInboxSize)
	defer bus.Close()

	membershipEventsChan := make(chan models.MemberShipEvent, 256)
	gossipEventsChan := make(chan models.GossipEvent, 256)
	memberList, err := memberlist.New(ctx, memberListCfg, self, membershipEventsChan, gossipEventsChan)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init memberlist")
	}

	cord := coordinator.NewCoordinator(self, bus, memberList, membershipEventsChan, gossipEventsChan)
	go cord.StartHandleMembershipChanges(ctx)

	err = memberList.Join(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to join gossip cluster")
	}
	peers := memberList.Members()
	log.Info().Msgf("joined gossip cluster, %d members known", len(peers))

	connect, err := strategies.NewFactory(probe.StrategyName(appCfg.ProbeStrategy), strategies.Settings{
		HTTP: httpprobe.Settings{Path: appCfg.HTTPProbePath},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to choose probe strategy")
	}

	var (
		servers  = make([]*shardserver.Server, 0, len(self.ShardPorts))
		stopped  = make(chan error, len(self.ShardPorts))
		detected = make([]<-chan error, 0, len(self.ShardPorts))
	)
	for i, port := range self.ShardPorts {
		id := models.ShardID(i)

		srv, err := shardserver.Serve(ctx, id, net.JoinHostPort(appCfg.ShardBindAddr, strconv.Itoa(int(port))), serverCfg)
		if err != nil {
			log.Fatal().Err(err).Msgf("failed to start shard %d server", id)
		}
		servers = append(servers, srv)

		sh, err := shard.New(id, self, shard.Deps{
			Local:    bus,
			Gossip:   memberList,
			Router:   sharder.NewRouter(consistent.NewCircle(), appCfg.ReplicationFactor),
			Journal:  journal,
			Metrics:  mtr,
			Registry: registry.New(self.Name, peers...),
		})
		if err != nil {
			log.Fatal().Err(err).Msgf("failed to create shard %d", id)
		}
		go sh.Run(ctx)

		d, err := detector.New(sh, connect, detectorCfg, detector.WithMetrics(mtr))
		if err != nil {
			log.Fatal().Err(err).Msgf("failed to create failure detector of shard %d", id)
		}
		detected = append(detected, detector.Spawn(ctx, d))
	}
	for _, result := range detected {
		go func() {
			err, ok := <-result
			if ok && err != nil {
				stopped <- err
			}
		}()
	}

	if appCfg.QueueAddr != "" {
		w := nodewatcher.NewNodeWatcher(self.Name.String(), appCfg.QueueAddr, appCfg.QueueTopic, cord)
		defer w.Close()
		go func() {
			err := w.RunNodeWatcher(ctx)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("node watcher stopped")
			}
		}()
	}

	if len(appCfg.EtcdEndpoints) != 0 {
		w, err := etcdwatcher.NewNodeWatcher(appCfg.EtcdEndpoints, appCfg.EtcdPrefix, cord)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init etcd node watcher")
		}
		defer w.Close()
		err = w.Register(ctx, self, appCfg.EtcdLeaseTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to register node in etcd")
		}
		go func() {
			err := w.RunNodeWatcher(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("etcd node watcher stopped")
			}
		}()
	}

	serverClose := startProbeServer(appCfg.HealthAddr)
	defer serverClose()

	select {
	case <-ctx.Done():
	case err = <-stopped:
		log.Error().Err(err).Msg("failure detector died, stopping node")
	}

	for _, srv := range servers {
		srv.SetDraining(true)
	}
	err = memberList.GracefullyClose(time.Second)
	if err != nil {
		log.Error().Err(err).Msg("failed to leave gossip cluster")
	}
	cancel()
	for _, srv := range servers {
		_ = srv.Close()
	}
}

func localNode(appCfg Config, memberListCfg memberlist.Config) (models.Node, error) {
	if appCfg.NodeName == "" {
		return models.Node{}, errors.New("NODE_NAME is empty")
	}
	if len(appCfg.ShardPorts) == 0 {
		return models.Node{}, errors.New("SHARD_PORTS is empty")
	}
	node := models.Node{
		Name:       models.NodeID(appCfg.NodeName),
		IP:         appCfg.NodeIP,
		ShardPorts: make([]uint16, 0, len(appCfg.ShardPorts)),
		GossipPort: uint16(memberListCfg.Port),
	}
	for _, port := range appCfg.ShardPorts {
		if port <= 0 || port > 65535 {
			return models.Node{}, errors.New("shard port out of range: " + strconv.Itoa(port))
		}
		node.ShardPorts = append(node.ShardPorts, uint16(port))
	}
	return node, nil
}

// startJournal wires the death journal when a database is configured, a nil
// journal drops records.
func startJournal(ctx context.Context, appCfg Config, reporter models.NodeID) *sender.Journal {
	if appCfg.DatabaseHost == "" {
		log.Warn().Msg("DATABASE_HOST is not set, node deaths are not journaled")
		return nil
	}
	repo, err := postgres.NewRepo(
		ctx,
		appCfg.DatabaseUser,
		appCfg.DatabasePassword,
		appCfg.DatabaseHost,
		appCfg.DatabasePort,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init postgres journal repository")
	}
	go func() {
		<-ctx.Done()
		repo.Close()
	}()

	journal := sender.NewJournal(reporter, appCfg.JournalBuffer)
	go sender.NewSenderController(journal.Events(), repo, appCfg.ResendInterval).Run(ctx)
	return journal
}

func startProbeServer(addr string) func() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	srv := http.Server{
		Handler:           mux,
		Addr:              addr,
		ReadHeaderTimeout: time.Second,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start http server")
		}
	}()
	return func() {
		_ = srv.Close()
	}
}
