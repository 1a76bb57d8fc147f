package main

import (
	"context"
	"time"

	"github.com/BearBump/FreightBox/config"
	"github.com/BearBump/FreightBox/internal/broker/kafka"
	"github.com/BearBump/FreightBox/internal/notify"
	"github.com/BearBump/FreightBox/internal/services/sweeper"
	"github.com/BearBump/FreightBox/internal/storage/pgfreight"
)

type workerStore interface {
	sweeper.Repository
	notify.Store
}

type workerFactories struct {
	newStorage  func(cfg *config.Config) (repo workerStore, closeFn func(), err error)
	newProducer func(cfg *config.Config) (p notify.Producer, closeFn func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgfreight.New(cfg.PostgresConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) (notify.Producer, func()) {
			p := kafka.NewProducer(cfg.KafkaBrokers())
			return p, func() { _ = p.Close() }
		},
	}
}

// RunFreightWorker крутит sweeper и, если задан swaggerPath, служебный HTTP.
func RunFreightWorker(ctx context.Context, cfg *config.Config, swaggerPath string, f workerFactories) error {
	topic := cfg.Kafka.NotificationsTopicName
	if topic == "" {
		topic = "freight.notifications"
	}
	interval := time.Duration(cfg.FreightBox.WorkerSweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	batchSize := cfg.FreightBox.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer, closeProducer := f.newProducer(cfg)
	if closeProducer != nil {
		defer closeProducer()
	}

	sw := sweeper.New(repo, notify.New(repo, producer, topic)).
		WithSettings(interval, batchSize, 10)

	if swaggerPath != "" {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		httpErr := make(chan error, 1)
		go func() {
			httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.FreightBox.WorkerHTTPAddr,
				swaggerPath: swaggerPath,
				sweeper:     sw,
				cfg:         cfg,
				ready:       readinessCheck(repo),
			})
		}()

		runErr := make(chan error, 1)
		go func() { runErr <- sw.Run(ctx) }()

		select {
		case err := <-runErr:
			return err
		case err := <-httpErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}

	return sw.Run(ctx)
}

type pinger interface {
	Ping(ctx context.Context) error
}

func readinessCheck(repo workerStore) func(ctx context.Context) error {
	p, ok := repo.(pinger)
	if !ok {
		return nil
	}
	return p.Ping
}
