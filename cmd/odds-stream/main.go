package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	sharedcache "github.com/radieske/prediction-market-node/internal/shared/cache"
	"github.com/radieske/prediction-market-node/internal/shared/config"
	"github.com/radieske/prediction-market-node/internal/shared/logger"
	"github.com/radieske/prediction-market-node/internal/shared/metrics"
	"github.com/radieske/prediction-market-node/internal/stream"
)

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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redisClient, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	// Hub WebSocket alimentado pelo canal Pub/Sub do cache de odds
	hub := stream.NewHub(func(r *http.Request) bool { return true }, log)
	stream.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	msrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	defer msrv.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("odds-stream started", zap.String("addr", srv.Addr), zap.String("channel", cfg.RedisPubSubChannel))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("ws server failed", zap.Error(err))
	}
	log.Info("odds-stream stopped")
}
