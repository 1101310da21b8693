package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/config"
	"github.com/vnmchuo/agentboard-billing/internal/api"
	"github.com/vnmchuo/agentboard-billing/internal/billing"
	"github.com/vnmchuo/agentboard-billing/internal/logger"
	"github.com/vnmchuo/agentboard-billing/internal/seeder"
	"github.com/vnmchuo/agentboard-billing/internal/teamcache"
	"github.com/vnmchuo/agentboard-billing/internal/telemetry"
	"github.com/vnmchuo/agentboard-billing/internal/upstream/gateway"
	"github.com/vnmchuo/agentboard-billing/internal/upstream/payments"
	"github.com/vnmchuo/agentboard-billing/internal/worker"
	"github.com/vnmchuo/agentboard-billing/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Init logging
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	// 3. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("billing-service", cfg, log)
	if err != nil {
		log.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Invoice store: PostgreSQL when configured, memory otherwise
	var store billing.Store
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			log.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore := billing.NewPostgresStore(pool)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatal("failed to migrate postgres", zap.Error(err))
		}
		store = pgStore
		log.Info("PostgreSQL connected")
	} else {
		store = billing.NewMemoryStore()
		log.Warn("POSTGRES_DSN not set, invoices are kept in memory")
	}

	// 5. Upstream clients
	gw := gateway.New(cfg.GatewayURL, cfg.UpstreamTimeout)
	pay := payments.New(cfg.PaymentsURL, cfg.UpstreamTimeout)
	var teams billing.TeamDirectory = gw

	// 6. Redis: team cache and generation rate limit
	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("failed to ping redis", zap.Error(err))
		}
		teams = teamcache.New(gw, rdb, teamcache.DefaultTTL, log)
		limiter = ratelimit.NewLimiter(rdb, cfg.InvoiceRateLimitPerMinute)
		log.Info("Redis connected")
	} else {
		log.Warn("REDIS_ADDR not set, team cache and rate limiting disabled")
	}

	// 7. Billing service
	pricing := billing.PricingTable{
		InputPricePer1K:  cfg.InputTokenPrice,
		OutputPricePer1K: cfg.OutputTokenPrice,
		CachedPricePer1K: cfg.CachedTokenPrice,
	}
	svc := billing.NewService(billing.Deps{
		Store:    store,
		Usage:    gw,
		Teams:    teams,
		Payments: pay,
		Pricing:  pricing,
		Tracer:   otel.GetTracerProvider().Tracer("billing-service"),
		Logger:   log,
		Metrics:  metrics,
	})

	// 8. Seed demo invoice if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		if _, err := seeder.SeedDemoInvoice(ctx, store, pricing, log); err != nil {
			log.Error("failed to seed demo invoice", zap.Error(err))
		}
	}

	// 9. Overdue sweeper
	sweeper := worker.NewSweeper(store, cfg.InvoiceDueDays, cfg.OverdueSweepInterval, metrics, log)
	go sweeper.Run(ctx)

	// 10. HTTP server
	handler := api.NewHandler(svc, limiter, log)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler, cfg.APIPrefix, metrics, prometheus.DefaultGatherer, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Billing service starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// 11. Graceful shutdown
	<-ctx.Done()
	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("Server stopped")
}
