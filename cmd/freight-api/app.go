package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	freightapi "github.com/BearBump/FreightBox/internal/api/freight_api"
	"github.com/BearBump/FreightBox/internal/broker/messages"
	"github.com/BearBump/FreightBox/internal/services/routes"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
)

type freightAPIOpts struct {
	httpAddr     string
	swaggerPath  string
	accessSecret string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runFreightAPI(ctx context.Context, opts freightAPIOpts, svc *routes.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}
	if opts.accessSecret == "" {
		return fmt.Errorf("auth.access_secret is required")
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(svc, opts))
	}()

	if consumer != nil {
		go func() {
			slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
			if err := consumer.Consume(ctx, progressHandler(ctx, svc)); err != nil && ctx.Err() == nil {
				slog.Error("kafka consumer stopped", "topic", opts.topic, "error", err.Error())
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

func newRouter(svc *routes.Service, opts freightAPIOpts) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	freightapi.New(svc).Mount(r, freightapi.NewTokenParser(opts.accessSecret))
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

// progressHandler применяет отчёты перевозчиков из Kafka.
// Битые и отклонённые доменом сообщения коммитим, иначе консьюмер встанет на них навсегда;
// инфраструктурные ошибки возвращаем, чтобы сообщение перечиталось.
func progressHandler(ctx context.Context, svc *routes.Service) func(key, value []byte) error {
	return func(_key, value []byte) error {
		var m messages.ProgressReported
		if err := json.Unmarshal(value, &m); err != nil {
			slog.Warn("skip malformed progress report", "error", err.Error())
			return nil
		}
		err := svc.ApplyProgressReport(ctx, m)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, routes.ErrInvalidInput),
			errors.Is(err, routes.ErrNoAccess),
			errors.Is(err, routes.ErrNotFound),
			errors.Is(err, routes.ErrRouteNotInTransit):
			slog.Warn("progress report rejected",
				"route_id", m.RouteID.String(), "carrier_id", m.CarrierID.String(), "error", err.Error())
			return nil
		}
		return err
	}
}
