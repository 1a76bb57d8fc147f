package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/FreightBox/config"
	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/notify"
	"github.com/BearBump/FreightBox/internal/services/sweeper"
	"github.com/BearBump/FreightBox/internal/storage/memfreight"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type noopProducer struct{}

func (p noopProducer) Publish(ctx context.Context, topic string, key, value []byte) error { return nil }

func TestDefaultWorkerFactories_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	require.NotNil(t, f.newStorage)

	cfg := &config.Config{Kafka: config.KafkaConfig{Host: "localhost", Port: 9092}}
	p, closeFn := f.newProducer(cfg)
	require.NotNil(t, p)
	require.NotNil(t, closeFn)
	closeFn()
}

func TestRunFreightWorker_ContextCanceled(t *testing.T) {
	calledClose := false

	f := workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			return memfreight.New(), func() { calledClose = true }, nil
		},
		newProducer: func(cfg *config.Config) (notify.Producer, func()) {
			return noopProducer{}, nil
		},
	}
	cfg := &config.Config{
		Kafka:      config.KafkaConfig{NotificationsTopicName: "t"},
		FreightBox: config.FreightBoxConfig{WorkerSweepIntervalSeconds: 1},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunFreightWorker(ctx, cfg, "", f)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestRunFreightWorker_StorageError(t *testing.T) {
	f := workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			return nil, nil, context.DeadlineExceeded
		},
		newProducer: func(cfg *config.Config) (notify.Producer, func()) {
			return noopProducer{}, nil
		},
	}
	err := RunFreightWorker(context.Background(), &config.Config{}, "", f)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerHTTP_Endpoints(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	st := memfreight.New()
	now := time.Now().UTC()
	r := &models.Route{
		ID:           uuid.New(),
		CompanyID:    uuid.New(),
		Origin:       models.Place{City: "Kyiv", Country: "UA", Lat: 50.45, Lng: 30.52},
		Destination:  models.Place{City: "Lviv", Country: "UA", Lat: 49.84, Lng: 24.03},
		CargoType:    "pallets",
		Weight:       100,
		Price:        1000,
		PickupDate:   now.Add(-time.Hour),
		DeliveryDate: now.Add(time.Hour),
		Status:       models.RouteStatusPending,
		CreatedAt:    now.Add(-2 * time.Hour),
		UpdatedAt:    now.Add(-2 * time.Hour),
	}
	require.NoError(t, st.CreateRoute(context.Background(), r, nil))

	s := sweeper.New(st, notify.New(st, nil, "")).WithSettings(time.Hour, 10, 1)
	cfg := &config.Config{
		Auth:       config.AuthConfig{AccessSecret: "top-secret"},
		FreightBox: config.FreightBoxConfig{WorkerSweepIntervalSeconds: 3600, SweepBatchSize: 10},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(a string) { addrCh <- a },
			sweeper:     s,
			cfg:         cfg,
		})
	}()
	base := "http://" + <-addrCh

	for _, p := range []string{"/healthz", "/readyz", "/swagger.json"} {
		resp, err := http.Get(base + p)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, p)
	}

	resp, err := http.Get(base + "/config")
	require.NoError(t, err)
	var conf map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&conf))
	resp.Body.Close()
	require.EqualValues(t, 10, conf["sweepBatchSize"])
	require.NotContains(t, conf, "accessSecret")

	resp, err = http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var stats sweeper.Stats
		if json.NewDecoder(resp.Body).Decode(&stats) != nil {
			return false
		}
		return stats.TotalExpired == 1 && stats.LastTriggerAt != nil
	}, 3*time.Second, 20*time.Millisecond)

	got, err := st.GetRoute(context.Background(), r.ID)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusExpired, got.Status)

	cancel()
	<-errCh
	require.ErrorIs(t, <-runDone, context.Canceled)
}

func TestWorkerHTTP_ReadyzFails(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	go func() {
		_ = runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(a string) { addrCh <- a },
			ready:       func(ctx context.Context) error { return context.DeadlineExceeded },
		})
	}()

	resp, err := http.Get("http://" + <-addrCh + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
