package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/api"
	"github.com/radieske/prediction-market-node/internal/market"
	"github.com/radieske/prediction-market-node/internal/messenger"
	"github.com/radieske/prediction-market-node/internal/oddscache"
	"github.com/radieske/prediction-market-node/internal/payout"
	sharedcache "github.com/radieske/prediction-market-node/internal/shared/cache"
	"github.com/radieske/prediction-market-node/internal/shared/config"
	"github.com/radieske/prediction-market-node/internal/shared/db"
	"github.com/radieske/prediction-market-node/internal/shared/kafka"
	"github.com/radieske/prediction-market-node/internal/shared/logger"
	"github.com/radieske/prediction-market-node/internal/shared/metrics"
	"github.com/radieske/prediction-market-node/internal/store/memory"
	"github.com/radieske/prediction-market-node/internal/store/postgres"
	"github.com/radieske/prediction-market-node/pkg/contracts/events"
	"github.com/radieske/prediction-market-node/pkg/contracts/topics"
)

// nodeStore é o armazenamento da partição local com o outbox junto
type nodeStore interface {
	market.Store
	messenger.Outbox
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.NodeID)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	policy, _ := cfg.PayoutPolicy()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Armazenamento da partição: memória ou Postgres
	var (
		store   nodeStore
		payouts payout.Inbox = payout.NewMemory()
		health  []metrics.HealthFunc
	)
	// sem Postgres o inbox de pagamentos só existe neste processo,
	// então o próprio nó consome o seu inbox Kafka
	var embedInbox bool
	switch cfg.StoreDriver {
	case "postgres":
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()

		pgStore := postgres.New(pg)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatal("postgres migrate", zap.Error(err))
		}
		pgInbox := payout.NewPostgres(pg)
		if err := pgInbox.Migrate(ctx); err != nil {
			log.Fatal("payout inbox migrate", zap.Error(err))
		}
		store, payouts = pgStore, pgInbox
		health = append(health, pg.PingContext)
		log.Info("postgres connected")
	default:
		store = memory.New()
		embedInbox = true
		log.Warn("using in-memory store, state is lost on restart")
	}

	// Cache das odds recebidas de outros nós
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()
	health = append(health, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	odds := oddscache.NewRedisCache(redisClient, cfg.OddsCacheTTL, "", log)

	// Métricas Prometheus
	col := metrics.NewCollectors(prometheus.DefaultRegisterer)

	machine := market.NewMachine(store, market.Config{Node: market.NodeID(cfg.NodeID), Payout: policy}, log)
	if err := machine.Instantiate(ctx); err != nil {
		log.Fatal("instantiate", zap.Error(err))
	}

	// Relay do outbox para o inbox Kafka de cada nó destino
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Fatal("kafka brokers not provided")
	}
	if cfg.Env == "local" || cfg.Env == "dev" {
		if err := kafka.EnsureTopics(ctx, brokers[0], topics.Inbox(cfg.TopicInboxPrefix, cfg.NodeID), cfg.TopicInboxDLQ); err != nil {
			log.Warn("failed to create kafka topics", zap.Error(err))
		}
	}
	writer := kafka.NewWriter(brokers)
	defer writer.Close()
	relay := messenger.NewRelay(store, messenger.NewKafkaTransport(writer, cfg.TopicInboxPrefix, log), cfg.RelayInterval, cfg.RelayBatch, log)
	relay.OnSent = func(k events.Kind) { col.MessageSent(string(k)) }
	relay.OnError = col.Error

	machine.OnApplied = col.OperationApplied
	machine.OnRejected = col.OperationRejected
	machine.OnEnqueued = func(k events.Kind, n int) {
		col.MessagesEnqueued(string(k), n)
		relay.Notify()
	}

	go func() {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("relay stopped", zap.Error(err))
		}
	}()

	if embedInbox {
		reader := kafka.NewReader(brokers, topics.Inbox(cfg.TopicInboxPrefix, cfg.NodeID), "market-node."+cfg.NodeID)
		defer reader.Close()
		var dlq messenger.MessageWriter
		if cfg.TopicInboxDLQ != "" {
			dlq = writer
		}
		recv := messenger.NewReceiver(cfg.NodeID, odds, payouts, log)
		consumer := messenger.NewInboxConsumer(reader, recv, dlq, cfg.TopicInboxDLQ, col, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("inbox consumer stopped", zap.Error(err))
			}
		}()
		log.Info("consuming inbox in process", zap.String("group", "market-node."+cfg.NodeID))
	}

	// Servidor de métricas e health
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		for _, h := range health {
			if err := h(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	log.Info("metrics/health listening", zap.String("addr", msrv.Addr))

	// API pública
	a := &api.API{Machine: machine, Cache: odds, Payouts: payouts, Log: log}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           a.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
		_ = msrv.Shutdown(shutdownCtx)
	}()

	log.Info("market-node started",
		zap.String("addr", srv.Addr),
		zap.String("store", cfg.StoreDriver),
		zap.String("payout_pool", string(policy.Pool)),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server failed", zap.Error(err))
	}
	log.Info("market-node stopped")
}
