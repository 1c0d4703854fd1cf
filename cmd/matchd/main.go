package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/matchd/internal/config"
	dbRedis "github.com/kailas-cloud/matchd/internal/db/redis"
	logpkg "github.com/kailas-cloud/matchd/internal/logger"
	"github.com/kailas-cloud/matchd/internal/metrics"
	"github.com/kailas-cloud/matchd/internal/repository/matchcache"
	"github.com/kailas-cloud/matchd/internal/repository/metricstore"
	"github.com/kailas-cloud/matchd/internal/repository/postgres"
	quotarepo "github.com/kailas-cloud/matchd/internal/repository/quota"
	"github.com/kailas-cloud/matchd/internal/repository/submit"
	"github.com/kailas-cloud/matchd/internal/scheduler"
	chiTransport "github.com/kailas-cloud/matchd/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/matchd/internal/transport/openai"
	"github.com/kailas-cloud/matchd/internal/usecase/backfill"
	"github.com/kailas-cloud/matchd/internal/usecase/matching"
	runuc "github.com/kailas-cloud/matchd/internal/usecase/run"
	"github.com/kailas-cloud/matchd/internal/version"
)

const quotaKeyTTL = 48 * time.Hour

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting matchd API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("redis_addrs", cfg.Redis.Addrs),
	)

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns,
		time.Duration(cfg.Database.ConnTimeoutSec)*time.Second)
	if err != nil {
		logger.Fatal("Failed to create postgres pool", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.WaitForReady(ctx, pool, time.Duration(cfg.Database.ReadinessWaitSec)*time.Second); err != nil {
		logger.Fatal("Postgres not ready", zap.Error(err))
	}
	logger.Info("Connected to postgres")

	kv, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create redis store", zap.Error(err))
	}
	defer kv.Close()

	if err := kv.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Redis not ready", zap.Error(err))
	}
	logger.Info("Connected to redis")

	// Register metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()
	metrics.RegisterEmbeddingMetrics()

	// Repositories
	candRepo := postgres.NewCandidateRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	prefRepo := postgres.NewPreferenceRepo(pool)
	appRepo := postgres.NewApplicationRepo(pool)
	runRepo := postgres.NewRunRepo(pool)
	metricStore := metricstore.New(pool)
	quota := quotarepo.New(kv, cfg.Redis.KeyPrefix, quotaKeyTTL)
	cache := matchcache.New(kv, cfg.Redis.KeyPrefix,
		time.Duration(cfg.Pipeline.MatchCacheTTLSec)*time.Second)

	// Submission path goes through the circuit breaker.
	submitter := submit.NewBreaker(appRepo, logger)

	embedder := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	logger.Info("Embedder created",
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Use case services
	matcher := matching.New(jobRepo).
		WithThreshold(cfg.Pipeline.SimilarityThreshold).
		WithLimits(cfg.Pipeline.TopJobs, cfg.Pipeline.TopCandidates)

	backfiller := backfill.New(candRepo, jobRepo, embedder, cfg.Embedding.BatchSize, logger)

	controller := runuc.NewController(
		candRepo, matcher, prefRepo, appRepo, submitter, runRepo, quota, metricStore, logger,
	).
		WithPageSize(cfg.Pipeline.PoolPageSize).
		WithConcurrency(cfg.Pipeline.Concurrency).
		WithSubmissionDelay(time.Duration(cfg.Pipeline.SubmissionDelayMS) * time.Millisecond)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(controller, runRepo, scheduler.Config{
			RunSpec:    cfg.Scheduler.RunSpec,
			ReaperSpec: cfg.Scheduler.ReaperSpec,
			StaleAfter: time.Duration(cfg.Scheduler.StaleAfterHr) * time.Hour,
		}, logger).WithBackfill(backfiller)
		if err := sched.Start(ctx); err != nil {
			logger.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	server := chiTransport.NewServer(
		controller, runRepo, metricStore,
		candRepo, jobRepo,
		matcher, candRepo, cache,
		prefRepo, backfiller,
		map[string]chiTransport.Pinger{
			"postgres": pool,
			"redis":    kv,
		},
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	if sched != nil {
		sched.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
