package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"verigate/internal/auditlog"
	auditkafka "verigate/internal/auditlog/kafka"
	"verigate/internal/platform/config"
	"verigate/internal/platform/httpserver"
	"verigate/internal/platform/logger"
	platformmetrics "verigate/internal/platform/metrics"
	platformredis "verigate/internal/platform/redis"
	rlmetrics "verigate/internal/ratelimit/metrics"
	rlservice "verigate/internal/ratelimit/service"
	"verigate/internal/ratelimit/store/window"
	httptransport "verigate/internal/transport/http"
	"verigate/internal/verification/gateway"
	vmetrics "verigate/internal/verification/metrics"
	"verigate/internal/verification/models"
	"verigate/internal/verification/service"
	"verigate/internal/verification/sources"
	"verigate/internal/verification/store"
)

// main wires the verification core, exposes the HTTP router and keeps the
// server lifecycle small. Business logic lives in internal services packages.
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

	auditOpts := []auditlog.Option{auditlog.WithSlog(log)}
	if cfg.AuditBuffer > 0 {
		auditOpts = append(auditOpts, auditlog.WithCapacity(cfg.AuditBuffer))
	}

	var publisher *auditkafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		var err error
		publisher, err = auditkafka.NewPublisher(cfg.KafkaBrokers,
			auditkafka.WithTopic(cfg.KafkaTopic),
			auditkafka.WithLogger(log),
		)
		if err != nil {
			return err
		}
		ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = publisher.EnsureTopic(ensureCtx)
		cancel()
		if err != nil {
			return err
		}
		auditOpts = append(auditOpts, auditlog.WithMirror(publisher))
		log.Info("audit log mirrored to kafka", "brokers", cfg.KafkaBrokers)
	}
	audit := auditlog.New(auditOpts...)

	registry, err := sources.NewRegistry(seedSources()...)
	if err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var windows window.Store
	if redisClient != nil {
		windows = window.NewRedisStore(redisClient.Client)
		log.Info("rate limit windows shared via redis")
	} else {
		windows = window.NewMemoryStore()
	}

	limiter, err := rlservice.New(windows, registry,
		rlservice.WithLogger(log),
		rlservice.WithMetrics(rlmetrics.New()),
	)
	if err != nil {
		return err
	}

	var backend store.Backend
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, store.Schema); err != nil {
			return err
		}
		backend = store.NewPostgresBackend(db)
		log.Info("verification requests persisted to postgres")
	} else {
		backend = store.NewMemoryBackend()
	}

	st, err := store.New(backend, store.WithLogger(audit))
	if err != nil {
		return err
	}

	gw, err := gateway.New(registry, &gateway.SimulatedClient{Latency: 150 * time.Millisecond},
		gateway.WithLogger(audit))
	if err != nil {
		return err
	}

	verifier, err := service.New(limiter, st, gw,
		service.WithLogger(audit),
		service.WithMetrics(vmetrics.New()),
	)
	if err != nil {
		return err
	}

	handler := httptransport.NewHandler(verifier, st, limiter, audit, log)
	if redisClient != nil {
		handler.RegisterHealthCheck("redis", redisClient.Health)
	}
	if db != nil {
		handler.RegisterHealthCheck("postgres", db.PingContext)
	}
	if publisher != nil {
		handler.RegisterHealthCheck("kafka", publisher.Health)
	}
	router := httptransport.NewRouter(handler, platformmetrics.New().Middleware)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting verigate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if publisher != nil {
			return publisher.Close(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

// seedSources declares the external authorities this deployment verifies
// against. In production these come from an operator-managed store; the
// registry is the read port either way.
func seedSources() []models.SourceConfig {
	return []models.SourceConfig{
		{SourceName: "moe_registry", RateLimitPerMinute: 60, Timeout: 10 * time.Second, AuthenticationType: "api_key", Active: true},
		{SourceName: "mohre_registry", RateLimitPerMinute: 60, Timeout: 10 * time.Second, AuthenticationType: "api_key", Active: true},
		{SourceName: "cert_authority", RateLimitPerMinute: 30, Timeout: 15 * time.Second, AuthenticationType: "oauth2", Active: true},
	}
}
