// Command server wires the event action API: storage, idempotency cache,
// index publisher, domain service, and the HTTP surface. Business logic
// lives in the internal services packages.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	eventhandler "registrar/internal/event/handler"
	"registrar/internal/event/idempotency"
	"registrar/internal/event/indexer"
	"registrar/internal/event/service"
	"registrar/internal/event/store"
	"registrar/internal/event/validation"
	"registrar/internal/platform/config"
	"registrar/internal/platform/httpserver"
	"registrar/internal/platform/logger"
	"registrar/internal/platform/metrics"
	"registrar/internal/platform/middleware"
	"registrar/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var checks []healthCheck

	events, closeStore, storeCheck, err := newEventStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	checks = append(checks, storeCheck)

	results, closeResults, resultsCheck, err := newResultStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeResults()
	checks = append(checks, resultsCheck)

	index, closeIndex, err := newIndexer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeIndex()

	svc := service.New(events, results, index,
		[]*validation.Form{validation.BirthForm()},
		service.WithLogger(log),
		service.WithMetrics(m))

	router := chi.NewRouter()
	eventhandler.New(svc, log, m, middleware.NewJWTValidator(cfg.JWTSigningKey)).Register(router)
	router.Get("/healthz", healthHandler(checks))
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting events server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// healthCheck probes one backing dependency for the health endpoint.
// In-memory fallbacks report healthy unconditionally.
type healthCheck struct {
	name  string
	probe func(ctx context.Context) error
}

func healthHandler(checks []healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := make(map[string]string, len(checks))
		for _, check := range checks {
			if check.probe == nil {
				components[check.name] = "ok"
				continue
			}
			if err := check.probe(ctx); err != nil {
				components[check.name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			components[check.name] = "ok"
		}

		body := map[string]any{"status": "ok", "components": components}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func newEventStore(ctx context.Context, cfg config.Server, log *slog.Logger) (store.EventStore, func(), healthCheck, error) {
	check := healthCheck{name: "events_store"}
	if cfg.PostgresURL == "" {
		log.Info("no postgres configured, using in-memory event store")
		return store.NewInMemory(), func() {}, check, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, check, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, check, err
	}
	pg := store.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, check, err
	}
	check.probe = db.PingContext
	return pg, func() { db.Close() }, check, nil
}

func newResultStore(cfg config.Server, log *slog.Logger) (idempotency.Store, func(), healthCheck, error) {
	check := healthCheck{name: "result_store"}
	client, err := redis.New(cfg.Redis)
	if err != nil {
		return nil, nil, check, err
	}
	if client == nil {
		log.Info("no redis configured, using in-memory idempotency store")
		return idempotency.NewInMemory(), func() {}, check, nil
	}
	check.probe = client.Health
	results := idempotency.NewRedis(client.Client, idempotency.WithTTL(cfg.Redis.ResultTTL))
	return results, func() { _ = client.Close() }, check, nil
}

func newIndexer(ctx context.Context, cfg config.Server, log *slog.Logger) (indexer.Indexer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("no kafka brokers configured, index refreshes are discarded")
		return indexer.Noop{}, func() {}, nil
	}
	k, err := indexer.NewKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, err
	}
	return k, k.Close, nil
}
