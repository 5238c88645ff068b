package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/alertsink"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/api"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/auth"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/catalog"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/live-tickers/cmd/gateway/internal/simulator"
	"github.com/shubham-shewale/live-tickers/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	cat, err := loadCatalog(cfg.Feed.CatalogPath)
	if err != nil {
		logger.Fatal("Failed to load instrument catalog", zap.Error(err))
	}

	engine := simulator.NewEngine(
		simulator.ConfigFrom(cfg.Feed),
		cat.Bootstrap(time.Now(), cfg.Feed.HistoryWindowSize),
		simulator.NewRealRand(time.Now().UnixNano()),
		simulator.RealClock{},
		logger,
	)
	wsHub := hub.NewHub(engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sinks []gateway.TickSink
	var closers []func() error

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		store := repository.NewRedisStore(rdb, cfg.Redis.SnapshotTTL)
		sinks = append(sinks, repository.NewSnapshotSink(store, engine))
		closers = append(closers, store.Close)
		logger.Info("Redis snapshot mirror enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.Kafka.Enabled {
		dialer := &alertsink.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 10 * time.Second}}
		alertsink.NewTopicCreator(logger, dialer, alertsink.RealSleeper{}).Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)

		sink := alertsink.NewSink(alertsink.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
		logger.Info("Kafka alert sink enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	feed := gateway.NewTickerGateway(engine, wsHub, cfg.Feed.TickInterval(), logger, sinks...)
	if err := feed.Start(ctx); err != nil {
		logger.Fatal("Failed to start ticker gateway", zap.Error(err))
	}

	authority := auth.NewAuthority(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	server := api.NewServer(cfg.App.Port, authority, wsHub, engine, feed, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP Error", zap.Error(err))
		}
	}

	feed.Stop()
	cancel()
	wsHub.Shutdown()
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}
	logger.Info("Shutdown Complete")
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Embedded()
	}
	return catalog.LoadFile(path)
}
