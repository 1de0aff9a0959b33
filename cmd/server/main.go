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

	"certexport/internal/audit"
	auditkafka "certexport/internal/audit/kafka"
	certstore "certexport/internal/certificate/store"
	"certexport/internal/export/cache"
	"certexport/internal/export/filler"
	"certexport/internal/export/format"
	"certexport/internal/export/handler"
	exportmetrics "certexport/internal/export/metrics"
	"certexport/internal/export/qr"
	"certexport/internal/export/render"
	"certexport/internal/export/service"
	jwttoken "certexport/internal/jwt_token"
	"certexport/internal/platform/config"
	"certexport/internal/platform/database"
	"certexport/internal/platform/health"
	"certexport/internal/platform/httpserver"
	"certexport/internal/platform/logger"
	"certexport/internal/platform/metrics"
	"certexport/internal/platform/middleware"
	"certexport/internal/platform/redis"
	"certexport/pkg/platform/circuit"
	"certexport/pkg/platform/middleware/metadata"
)

const shutdownTimeout = 15 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	log.Info("initializing certexport",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"strict_templates", cfg.Export.StrictTemplates,
	)

	checks := health.New(cfg.Environment)

	var (
		certificates service.CertificateStore = certstore.NewInMemory()
		auditSink    audit.Store              = audit.NewInMemoryStore()
		documents    service.DocumentCache
	)

	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	if pool != nil {
		defer closeWith(log, "database", pool.Close)
		if err := database.Migrate(ctx, pool.DB()); err != nil {
			return err
		}
		certificates = certstore.NewPostgres(pool.DB())
		auditSink = audit.NewPostgresStore(pool.DB())
		checks.RegisterCheck("database", pool.Health)
		log.Info("using postgres certificate store")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer closeWith(log, "redis", redisClient.Close)
		documents = cache.NewGuarded(
			cache.NewRedis(redisClient.Client, cache.WithTTL(cfg.Export.CacheTTL)),
			circuit.New("document-cache"),
			log,
		)
		checks.RegisterCheck("redis", redisClient.Health)
		log.Info("using redis document cache")
	} else {
		documents = cache.NewMemory(cache.WithMemoryTTL(cfg.Export.CacheTTL))
	}

	producer, err := auditkafka.New(cfg.Kafka, log)
	if err != nil {
		return err
	}
	if producer != nil {
		defer closeWith(log, "kafka", producer.Close)
		if err := producer.EnsureTopic(ctx, 1, 1); err != nil {
			log.Warn("failed to ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		auditSink = producer
		checks.RegisterCheck("kafka", producer.Health)
		log.Info("streaming audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	}

	queue := audit.NewQueue(audit.DefaultQueueSize)
	auditWorker := audit.NewWorker(auditSink, queue, log)
	publisher := audit.NewPublisher(queue, audit.WithLogger(log))

	exportMetrics := exportmetrics.New()
	httpMetrics := metrics.New()

	fl := filler.New(
		filler.WithFormatter(format.New(format.WithDateLayout(cfg.Export.DateLayout))),
		filler.WithQRSize(qr.Size{Width: cfg.Export.QRSize, Height: cfg.Export.QRSize}),
		filler.WithStrict(cfg.Export.StrictTemplates),
		filler.WithLogger(log),
		filler.WithMetrics(exportMetrics),
	)
	renderer := render.New(
		render.WithBackend(render.NewSVGBackend(render.WithPageSize(cfg.Export.PageSize))),
		render.WithTimeout(cfg.Export.RenderTimeout),
		render.WithLogger(log),
		render.WithMetrics(exportMetrics),
	)
	exportService := service.New(fl, renderer,
		service.WithStore(certificates),
		service.WithCache(documents),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(exportMetrics),
		service.WithLogger(log),
		service.WithBatchLimits(cfg.Export.BatchConcurrency, cfg.Export.MaxBatchSize),
	)

	var validator middleware.JWTValidator
	if cfg.Auth.Disabled {
		log.Warn("bearer token authentication disabled")
	} else {
		jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
		validator = jwttoken.NewJWTServiceAdapter(jwtService)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logger(log, httpMetrics))
	checks.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	handler.New(exportService, log, validator).Register(r)

	srv := httpserver.New(cfg.Addr, r, cfg.Export.RenderTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if dropped := queue.Dropped(); dropped > 0 {
		log.Warn("audit events dropped", "count", dropped)
	}
	return err
}

func closeWith(log *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
