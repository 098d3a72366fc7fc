package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-moderation/internal/audit"
	"github.com/af-corp/aegis-moderation/internal/cache"
	"github.com/af-corp/aegis-moderation/internal/config"
	"github.com/af-corp/aegis-moderation/internal/filter"
	"github.com/af-corp/aegis-moderation/internal/filter/managed"
	"github.com/af-corp/aegis-moderation/internal/filter/policy"
	"github.com/af-corp/aegis-moderation/internal/filter/textmodel"
	"github.com/af-corp/aegis-moderation/internal/filter/vision"
	"github.com/af-corp/aegis-moderation/internal/gateway"
	"github.com/af-corp/aegis-moderation/internal/moderation"
	"github.com/af-corp/aegis-moderation/internal/ratelimit"
	"github.com/af-corp/aegis-moderation/internal/router"
	"github.com/af-corp/aegis-moderation/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, "moderator", cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.TraceSampleRate)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetricsWith(reg)

	rdb := connectRedis(ctx, cfg.Redis, logger)

	// Upstream routing
	health := router.NewHealthTracker(cfg.Routing.CircuitBreaker.FailureThreshold, cfg.Routing.CircuitBreaker.RecoveryProbeInterval)
	registry := router.BuildFromConfig(loader.Providers(), router.NewTransport(cfg.Routing.MaxIdleConnsPerHost))
	completer := router.NewRouter(loader.Models(), registry, health, metrics, logger)

	mod := cfg.Moderation
	settings := moderation.SettingsFromConfig(mod)
	opts := []moderation.Option{
		moderation.WithMetrics(metrics),
		moderation.WithLogger(logger),
	}

	if mod.TextModelEnabled {
		opts = append(opts, moderation.WithTextClassifier(
			textmodel.NewClassifier(completer, mod.MaxTokens, mod.CallTimeout, logger)))
	}
	if mod.VisionModelEnabled {
		opts = append(opts, moderation.WithVisionClassifier(vision.NewClassifier(completer, settings.Thresholds,
			vision.WithBatchSize(mod.MaxImagesPerVisionCall),
			vision.WithMaxTokens(mod.MaxTokens),
			vision.WithTimeout(mod.CallTimeout),
			vision.WithLogger(logger),
		)))
	}

	src, err := managed.NewFromConfig(ctx, cfg.Managed, managed.Options{
		MinConfidence: cfg.Managed.MinConfidence,
		MaxKeys:       cfg.Managed.MaxKeys,
		Concurrency:   cfg.Managed.Concurrency,
		Timeout:       mod.CallTimeout,
		Thresholds:    filter.Thresholds{Soft: mod.SoftThreshold, Hard: mod.HardThreshold},
		Logger:        logger,
	})
	if err != nil {
		logger.Warn("managed vision disabled", "error", err)
	} else if src != nil {
		opts = append(opts, moderation.WithManagedSource(src))
	}

	if cfg.Policy.Enabled {
		esc := policy.NewEscalator(cfg.Policy.EvaluationTimeout, logger)
		if err := esc.Load(cfg.Policy.BundlePath); err != nil {
			logger.Error("failed to load escalation policy", "error", err)
			os.Exit(1)
		}
		opts = append(opts, moderation.WithEscalator(esc))
	}

	limiter := ratelimit.NewLimiter(rdb)
	if cfg.Quota.Enabled {
		opts = append(opts, moderation.WithQuota(ratelimit.NewQuotaGuard(limiter, cfg.Quota.Limits, cfg.Quota.Window)))
	}

	engine, err := moderation.New(settings, opts...)
	if err != nil {
		logger.Error("failed to build moderation engine", "error", err)
		os.Exit(1)
	}

	handlerOpts := []gateway.Option{
		gateway.WithHealth(health),
		gateway.WithMetrics(metrics),
		gateway.WithTimeout(mod.Timeout),
		gateway.WithVersion(version),
		gateway.WithLogger(logger),
	}

	verdicts, err := cache.New(cfg.Cache, rdb)
	if err != nil {
		logger.Warn("verdict cache disabled", "error", err)
	} else if verdicts != nil {
		handlerOpts = append(handlerOpts, gateway.WithCache(verdicts))
	}

	var store *audit.Store
	if cfg.Audit.Enabled {
		dbPool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()
		if err := dbPool.Ping(ctx); err != nil {
			logger.Warn("database not reachable (audit writes will fail)", "error", err)
		} else {
			logger.Info("database connected")
		}
		store = audit.NewStore(dbPool, logger)
		handlerOpts = append(handlerOpts, gateway.WithAuditor(store))
	}

	var limit func(http.Handler) http.Handler
	if cfg.Quota.ClientRPM > 0 {
		limit = ratelimit.Middleware(limiter, cfg.Quota.ClientRPM, metrics)
	}

	handler := gateway.NewHandler(engine, handlerOpts...)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      gateway.NewRouter(handler, limit, reg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("moderator starting", "addr", addr, "version", version,
			"text_model", mod.TextModelEnabled, "vision_model", mod.VisionModelEnabled,
			"managed_vision", src != nil, "policy", cfg.Policy.Enabled, "cache", cfg.Cache.Backend)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	store.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("moderator stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// connectRedis returns nil when no address is configured or the server is
// unreachable; every Redis consumer then fails open.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) redis.UniversalClient {
	if len(cfg.Addresses) == 0 || cfg.Addresses[0] == "" {
		return nil
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable (quota and shared cache disabled)", "error", err)
		rdb.Close()
		return nil
	}
	logger.Info("redis connected")
	return rdb
}
