package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"registrar/internal/boundary"
	"registrar/internal/household"
	"registrar/internal/idgen"
	"registrar/internal/individual"
	"registrar/internal/platform/config"
	"registrar/internal/platform/httpserver"
	"registrar/internal/platform/kafka"
	"registrar/internal/platform/logger"
	"registrar/internal/platform/metrics"
	"registrar/internal/platform/postgres"
	platformredis "registrar/internal/platform/redis"
	"registrar/internal/project"
	"registrar/internal/stock"
)

// main wires the platform, the four registry modules and the server
// lifecycle. Business logic lives under internal/registry and the domain
// packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient == nil {
		log.Warn("redis not configured, cache disabled")
	} else {
		defer redisClient.Close()
	}

	producer, err := kafka.NewProducer(cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer producer.Close()

	m := metrics.New()
	boundaryClient := boundary.NewClient(cfg.Boundary, log)
	gen := idgen.UUID{}

	households := household.New(household.Deps{
		DB: db, Redis: redisClient, Producer: producer, Boundary: boundaryClient,
		IDGen: gen, CacheTTL: cfg.Redis.TTL, SearchLimitMax: cfg.SearchLimitMax,
		Logger: log, Metrics: m,
	})
	individuals := individual.New(individual.Deps{
		DB: db, Redis: redisClient, Producer: producer, Boundary: boundaryClient,
		IDGen: gen, CacheTTL: cfg.Redis.TTL, SearchLimitMax: cfg.SearchLimitMax,
		Logger: log, Metrics: m,
	})
	projects := project.New(project.Deps{
		DB: db, Redis: redisClient, Producer: producer, Boundary: boundaryClient,
		IDGen: gen, CacheTTL: cfg.Redis.TTL, SearchLimitMax: cfg.SearchLimitMax,
		Logger: log, Metrics: m,
	})
	stocks := stock.New(stock.Deps{
		DB: db, Redis: redisClient, Producer: producer,
		IDGen: gen, CacheTTL: cfg.Redis.TTL, SearchLimitMax: cfg.SearchLimitMax,
		Logger: log, Metrics: m,
	})

	handlers := map[string]kafka.TopicHandler{}
	for _, module := range []interface {
		TopicHandlers() map[string]kafka.TopicHandler
	}{households, individuals, projects, stocks} {
		for topic, h := range module.TopicHandlers() {
			handlers[topic] = h
		}
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka, handlers, log, m)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	households.Register(router)
	individuals.Register(router)
	projects.Register(router)
	stocks.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting registrar", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
