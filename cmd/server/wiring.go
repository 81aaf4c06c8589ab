package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"treasury/internal/platform/config"
	platformmetrics "treasury/internal/platform/metrics"
	platformredis "treasury/internal/platform/redis"
	vaultauth "treasury/internal/vault/auth"
	"treasury/internal/vault/clock"
	"treasury/internal/vault/handler"
	vaultmetrics "treasury/internal/vault/metrics"
	"treasury/internal/vault/models"
	"treasury/internal/vault/service"
	"treasury/internal/vault/store"
	"treasury/internal/vault/transfer"
	"treasury/internal/vault/worker"
	"treasury/pkg/platform/audit"
	"treasury/pkg/platform/audit/publisher"
	kafkasink "treasury/pkg/platform/audit/sink/kafka"
	auditmemory "treasury/pkg/platform/audit/store/memory"
	auditpostgres "treasury/pkg/platform/audit/store/postgres"
	"treasury/pkg/platform/httputil"
	authmw "treasury/pkg/platform/middleware/auth"
	"treasury/pkg/platform/middleware/ratelimit"
	"treasury/pkg/platform/middleware/request"
	"treasury/pkg/platform/middleware/requesttime"
)

type application struct {
	router     http.Handler
	worker     *worker.Worker
	closers    []func()
	// background loops run until the server context is cancelled.
	background []func(context.Context)
}

// Close releases resources in reverse acquisition order.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type storage struct {
	kv     store.KV
	audit  audit.Store
	health func(context.Context) error
	// redis is set for the redis backend and shares rate limit windows.
	redis  *redis.Client
}

func build(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	app := &application{}
	fail := func(err error) (*application, error) {
		app.Close()
		return nil, err
	}

	st, err := buildStorage(ctx, cfg, app)
	if err != nil {
		return fail(err)
	}

	auditStore, err := buildAuditSinks(ctx, cfg, log, st.audit, app)
	if err != nil {
		return fail(err)
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(log),
	)
	app.closers = append(app.closers, auditPublisher.Close)

	// Configured balances are opening balances: a durable backend that
	// already holds one keeps it.
	ledger := transfer.NewLedger(models.Identity(cfg.Vault.Account), transfer.WithStore(st.kv))
	for token, raw := range cfg.Vault.Balances {
		amount, err := models.ParseAmount(raw)
		if err != nil {
			return fail(fmt.Errorf("vault balance for %s: %w", token, err))
		}
		seeded, err := ledger.Seed(ctx, models.Identity(token), ledger.Vault(), amount)
		if err != nil {
			return fail(fmt.Errorf("seed vault balance for %s: %w", token, err))
		}
		if !seeded {
			log.InfoContext(ctx, "keeping stored vault balance", "token", token)
		}
	}

	reg := prometheus.NewRegistry()
	var (
		httpMetrics  *platformmetrics.Metrics
		vaultMetrics *vaultmetrics.Metrics
	)
	if cfg.Metrics.Enabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		httpMetrics = platformmetrics.New(reg)
		vaultMetrics = vaultmetrics.New(reg)
	}

	svc, err := service.New(st.kv,
		vaultauth.NewContextAuthenticator(),
		ledger,
		clock.NewLedger(cfg.Ledger.Genesis, cfg.Ledger.TickDuration),
		service.WithLogger(log),
		service.WithAuditPublisher(auditPublisher),
		service.WithMetrics(vaultMetrics),
		service.WithProposalLifetime(models.Tick(cfg.Vault.ProposalLifetimeTicks)),
	)
	if err != nil {
		return fail(fmt.Errorf("build vault service: %w", err))
	}

	app.worker, err = worker.New(svc, cfg.Vault.RecurringInterval, worker.WithLogger(log))
	if err != nil {
		return fail(fmt.Errorf("build recurring worker: %w", err))
	}

	tokens := vaultauth.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(log))
	r.Use(request.Timeout(cfg.Server.RequestTimeout))
	r.Use(platformmetrics.Latency(httpMetrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	limiter := ratelimit.New(buildBucketStore(cfg, st, app), cfg.RateLimit.Requests, cfg.RateLimit.Window,
		ratelimit.WithLogger(log),
		ratelimit.WithDisabled(!cfg.RateLimit.Enabled),
	)

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON)
		r.Use(authmw.RequireAuth(tokens, log))
		r.Use(limiter.Handler)
		handler.New(svc, log).Register(r)
	})

	app.router = r
	return app, nil
}

func buildStorage(ctx context.Context, cfg config.Config, app *application) (*storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		return &storage{
			kv:     store.NewRedis(client.Client, cfg.Storage.KeyPrefix),
			audit:  auditmemory.NewInMemoryStore(),
			health: client.Health,
			redis:  client.Client,
		}, nil

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		kv := store.NewPostgres(db)
		if err := kv.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate vault state: %w", err)
		}
		auditStore := auditpostgres.New(db)
		if err := auditStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate audit events: %w", err)
		}
		return &storage{kv: kv, audit: auditStore, health: db.PingContext}, nil

	default:
		return &storage{
			kv:     store.NewMemory(),
			audit:  auditmemory.NewInMemoryStore(),
			health: func(context.Context) error { return nil },
		}, nil
	}
}

func buildBucketStore(cfg config.Config, st *storage, app *application) ratelimit.BucketStore {
	if st.redis != nil {
		return ratelimit.NewRedisBucketStore(st.redis, cfg.Storage.KeyPrefix+"ratelimit:")
	}
	buckets := ratelimit.NewMemoryBucketStore()
	app.background = append(app.background, func(ctx context.Context) {
		buckets.StartCleanup(ctx, cfg.RateLimit.Window, cfg.RateLimit.Window)
	})
	return buckets
}

// buildAuditSinks fans committed audit events out to Kafka when configured.
func buildAuditSinks(ctx context.Context, cfg config.Config, log *slog.Logger, primary audit.Store, app *application) (audit.Store, error) {
	if cfg.Audit.Sink != config.AuditSinkKafka {
		return primary, nil
	}
	sink, err := kafkasink.NewSink(ctx, kafkasink.Config{
		Brokers: cfg.Audit.KafkaBrokers,
		Topic:   cfg.Audit.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("connect kafka audit sink: %w", err)
	}
	app.closers = append(app.closers, sink.Close)
	return audit.NewFanout(primary, log, sink), nil
}
