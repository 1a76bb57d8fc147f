package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/FreightBox/config"
	"github.com/BearBump/FreightBox/internal/broker/kafka"
	"github.com/BearBump/FreightBox/internal/cache/rediscache"
	"github.com/BearBump/FreightBox/internal/notify"
	"github.com/BearBump/FreightBox/internal/services/routes"
	"github.com/BearBump/FreightBox/internal/services/sweeper"
	"github.com/BearBump/FreightBox/internal/storage/memfreight"
	"github.com/BearBump/FreightBox/internal/storage/pgfreight"
	"github.com/redis/go-redis/v9"
)

// store: всё, что нужно сервису, нотификатору и sweeper'у от хранилища.
type store interface {
	routes.Repository
	notify.Store
	sweeper.Repository
	Close()
}

type freightAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     freightAPIOpts
	svc      *routes.Service
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapFreightAPI() *freightAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.FreightBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.FreightBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "freight-api"
	}
	progressTopic := cfg.Kafka.ProgressTopicName
	if progressTopic == "" {
		progressTopic = "route.progress"
	}
	notificationsTopic := cfg.Kafka.NotificationsTopicName
	if notificationsTopic == "" {
		notificationsTopic = "freight.notifications"
	}
	viewTTL := time.Duration(cfg.FreightBox.TrackingViewTTLSeconds) * time.Second
	if viewTTL <= 0 {
		viewTTL = 30 * time.Second
	}
	bidLimit := cfg.FreightBox.BidRateLimitPerMinute
	if bidLimit <= 0 {
		bidLimit = 30
	}
	sweepBatch := cfg.FreightBox.SweepBatchSize
	if sweepBatch <= 0 {
		sweepBatch = 100
	}

	app := &freightAPIApp{}

	var st store
	if cfg.Database.Host == "" {
		slog.Warn("database.host is empty, using in-memory storage")
		st = memfreight.New()
	} else {
		st = mustOpenPostgresWithRetry(cfg.PostgresConnString(), 60*time.Second)
	}
	app.closers = append(app.closers, st.Close)

	producer := kafka.NewProducer(cfg.KafkaBrokers())
	app.closers = append(app.closers, func() { _ = producer.Close() })
	dispatcher := notify.New(st, producer, notificationsTopic)

	svc := routes.New(st, dispatcher).
		WithExpirer(sweeper.New(st, dispatcher).WithSettings(0, sweepBatch, 0)).
		WithRejectLosingBids(cfg.FreightBox.RejectLosingBids)

	if cfg.Redis.Host != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
		app.closers = append(app.closers, func() { _ = rc.Close() })
		svc.WithCache(rediscache.NewWithClient(rc), viewTTL).
			WithRateLimiter(rediscache.NewRateLimiterWithClient(rc), bidLimit)
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers(), progressTopic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app.ctx = ctx
	app.cancel = cancel
	app.opts = freightAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		accessSecret:  cfg.Auth.AccessSecret,
		topic:         progressTopic,
		consumerGroup: consumerGroup,
	}
	app.svc = svc
	app.consumer = consumer
	return app
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgfreight.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgfreight.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *freightAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *freightAPIApp) Run() error {
	return runFreightAPI(a.ctx, a.opts, a.svc, a.consumer)
}
