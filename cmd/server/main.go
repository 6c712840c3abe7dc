// Command server runs the credence reputation ledger: the identity registry,
// the epoch-scoped vote ledger, consensus resolution, and the content feed.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"credence/internal/feed"
	"credence/internal/issuance"
	"credence/internal/ledger/handler"
	"credence/internal/ledger/models"
	"credence/internal/ledger/service"
	"credence/internal/ledger/store"
	ledgermemory "credence/internal/ledger/store/memory"
	ledgerpostgres "credence/internal/ledger/store/postgres"
	"credence/internal/platform/config"
	"credence/internal/platform/httpserver"
	"credence/internal/platform/logger"
	"credence/internal/platform/metrics"
	"credence/internal/platform/middleware"
	platformredis "credence/internal/platform/redis"
	"credence/internal/transport/http/shared"
	"credence/pkg/platform/audit"
	auditkafka "credence/pkg/platform/audit/kafka"
	auditmemory "credence/pkg/platform/audit/store/memory"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ledgerStore, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	auditor, auditWorker, auditCleanup, err := buildAuditor(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer auditCleanup()

	m := metrics.New()

	params := models.DefaultParams()
	params.BootstrapSlots = cfg.Ledger.BootstrapSlots
	params.EpochDuration = cfg.Ledger.EpochDuration

	ledger, err := service.New(ledgerStore, params,
		service.WithLogger(log),
		service.WithAuditPublisher(auditor),
		service.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	validator := middleware.NewModeratorValidator(cfg.AdminJWTKey)

	cache, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if cache != nil {
		defer cache.Close()
	}

	var feedSvc *feed.Service
	if cache != nil {
		feedSvc, err = feed.New(cache, ledger, cfg.Feed.TTL, cfg.Feed.RecentSize, feed.WithLogger(log))
		if err != nil {
			return err
		}
	} else {
		log.Warn("redis not configured, feed endpoints disabled")
	}

	router := buildRouter(cfg, log, m, ledger, validator, feedSvc, ledgerStore, cache)
	server := httpserver.New(cfg.Addr, router)

	group, ctx := errgroup.WithContext(ctx)

	if auditWorker != nil {
		group.Go(func() error { return auditWorker.Run(ctx) })
	}

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if feedSvc != nil && len(cfg.Kafka.Brokers) > 0 {
		consumer, err := feed.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.ContentTopic, feedSvc,
			feed.WithConsumerLogger(log),
			feed.WithConsumerMetrics(m),
		)
		if err != nil {
			return err
		}
		group.Go(func() error {
			log.Info("content consumer started",
				"topic", cfg.Kafka.ContentTopic, "group", cfg.Kafka.ConsumerGroup)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func buildStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.Ledger, func(), error) {
	if cfg.PostgresURL == "" {
		log.Warn("postgres not configured, using in-memory store")
		return ledgermemory.New(), func() {}, nil
	}
	pg, err := ledgerpostgres.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to postgres")
	return pg, pg.Close, nil
}

// buildAuditor returns the publisher, an optional background worker that
// drains the async queue into Kafka, and a cleanup func.
func buildAuditor(ctx context.Context, cfg config.Config, log *slog.Logger) (*audit.Publisher, *audit.Worker, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("kafka not configured, audit events stay in memory")
		return audit.NewPublisher(auditmemory.New()), nil, func() {}, nil
	}
	st, err := auditkafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, auditkafka.WithLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}
	queue := audit.NewAsyncStore(1024, log)
	worker, err := audit.NewWorker(queue, st)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	log.Info("audit trail publishing to kafka", "topic", cfg.Kafka.AuditTopic)
	return audit.NewPublisher(queue), worker, st.Close, nil
}

func buildRouter(
	cfg config.Config,
	log *slog.Logger,
	m *metrics.Metrics,
	ledger *service.Service,
	validator *middleware.ModeratorValidator,
	feedSvc *feed.Service,
	ledgerStore store.Ledger,
	cache *platformredis.Client,
) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.Latency(m))
	router.Use(middleware.Timeout(30 * time.Second))

	var counter middleware.Counter = middleware.NewMemoryCounter()
	if cache != nil {
		counter = middleware.NewRedisCounter(cache)
	}

	router.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RateLimit(counter, cfg.RateLimit.Limit, cfg.RateLimit.Window, log))
		handler.New(ledger, log, validator).Register(r)
		issuance.NewHandler(log).Register(r)
		if feedSvc != nil {
			feed.NewHandler(feedSvc, log).Register(r)
		}
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := ledgerStore.Epoch(r.Context()); err != nil {
			shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "store unavailable"})
			return
		}
		if cache != nil {
			if err := cache.Health(r.Context()); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "cache unavailable"})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", promhttp.Handler())

	return router
}
