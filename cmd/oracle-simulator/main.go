package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-node/internal/oracle"
	"github.com/radieske/prediction-market-node/internal/shared/config"
	"github.com/radieske/prediction-market-node/internal/shared/logger"
	"github.com/radieske/prediction-market-node/internal/shared/metrics"
)

var (
	// Métricas Prometheus do feed
	oddsPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oracle_odds_published_total",
		Help: "UpdateOdds aceitos pelo market-node",
	})
	oracleErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oracle_errors_total",
		Help: "erros por estágio",
	}, []string{"stage"})
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
	if len(cfg.OracleMarkets) == 0 {
		log.Fatal("ORACLE_MARKETS is empty")
	}

	prometheus.MustRegister(oddsPublished, oracleErrors)
	msrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	defer msrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	feed := &oracle.Feed{
		Client:      oracle.NewClient(cfg.MarketNodeURL, cfg.NodeID),
		Markets:     cfg.OracleMarkets,
		Interval:    cfg.OracleInterval,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		Log:         log,
		OnPublished: oddsPublished.Inc,
		OnError:     func(stage string) { oracleErrors.WithLabelValues(stage).Inc() },
	}

	log.Info("oracle-simulator started",
		zap.String("market_node", cfg.MarketNodeURL),
		zap.Uint64s("markets", cfg.OracleMarkets),
		zap.Duration("interval", cfg.OracleInterval),
	)
	if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("feed stopped", zap.Error(err))
	}
	log.Info("oracle-simulator stopped")
}
