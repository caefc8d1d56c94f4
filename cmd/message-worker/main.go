package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/messenger"
	"github.com/radieske/prediction-market-node/internal/oddscache"
	"github.com/radieske/prediction-market-node/internal/payout"
	sharedcache "github.com/radieske/prediction-market-node/internal/shared/cache"
	"github.com/radieske/prediction-market-node/internal/shared/config"
	"github.com/radieske/prediction-market-node/internal/shared/db"
	"github.com/radieske/prediction-market-node/internal/shared/kafka"
	"github.com/radieske/prediction-market-node/internal/shared/logger"
	"github.com/radieske/prediction-market-node/internal/shared/metrics"
	"github.com/radieske/prediction-market-node/pkg/contracts/topics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config: %w", err))
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.NodeID)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Redis: cache das odds remotas + broadcast para o odds-stream
	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()
	odds := oddscache.NewRedisCache(redisClient, cfg.OddsCacheTTL, cfg.RedisPubSubChannel, log)

	health := []metrics.HealthFunc{func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }}

	// Inbox de pagamentos: Postgres quando o nó persiste estado
	var payouts payout.Inbox = payout.NewMemory()
	if cfg.StoreDriver == "postgres" {
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("postgres connect", zap.Error(err))
		}
		defer pg.Close()
		pgInbox := payout.NewPostgres(pg)
		if err := pgInbox.Migrate(ctx); err != nil {
			log.Fatal("payout inbox migrate", zap.Error(err))
		}
		payouts = pgInbox
		health = append(health, pg.PingContext)
	} else {
		log.Warn("payout inbox in memory, notices are lost on restart")
	}

	col := metrics.NewCollectors(prometheus.DefaultRegisterer)

	recv := messenger.NewReceiver(cfg.NodeID, odds, payouts, log)

	// Kafka: consumer do inbox deste nó e writer da DLQ
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Fatal("kafka brokers not provided")
	}
	inbox := topics.Inbox(cfg.TopicInboxPrefix, cfg.NodeID)
	reader := kafka.NewReader(brokers, inbox, "message-worker."+cfg.NodeID)
	defer reader.Close()

	var dlq messenger.MessageWriter
	if cfg.TopicInboxDLQ != "" {
		w := kafka.NewWriter(brokers)
		defer w.Close()
		dlq = w
	}
	consumer := messenger.NewInboxConsumer(reader, recv, dlq, cfg.TopicInboxDLQ, col, log)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		for _, h := range health {
			if err := h(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	defer msrv.Close()

	log.Info("message-worker started", zap.String("consume", inbox), zap.String("dlq", cfg.TopicInboxDLQ))
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("consumer stopped with error", zap.Error(err))
	}
	log.Info("message-worker stopped")
}
