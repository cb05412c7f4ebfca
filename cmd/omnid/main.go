package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/omniview/internal/config"
	"github.com/kailas-cloud/omniview/internal/db"
	"github.com/kailas-cloud/omniview/internal/db/dynamo"
	"github.com/kailas-cloud/omniview/internal/db/memory"
	dbRedis "github.com/kailas-cloud/omniview/internal/db/redis"
	logpkg "github.com/kailas-cloud/omniview/internal/logger"
	"github.com/kailas-cloud/omniview/internal/metrics"
	chiTransport "github.com/kailas-cloud/omniview/internal/transport/chi"
	"github.com/kailas-cloud/omniview/internal/transport/redisstream"
	"github.com/kailas-cloud/omniview/internal/usecase/health"
	"github.com/kailas-cloud/omniview/internal/usecase/maintainer"
	"github.com/kailas-cloud/omniview/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting omniview maintainer",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Bool("http_feed", cfg.Feed.HTTP.Enabled),
		zap.Bool("redis_feed", cfg.Feed.Redis.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lay := cfg.Layout.Layout()

	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create aggregate store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Aggregate store not ready", zap.Error(err))
	}
	logger.Info("Connected to aggregate store")

	svc := maintainer.New(store, lay, logger).
		WithMaxConflictRetries(cfg.Maintainer.MaxConflictRetries)
	healthSvc := health.New(store)

	var consumer *redisstream.Consumer
	if cfg.Feed.Redis.Enabled {
		client, err := dbRedis.NewClient(dbRedis.Config{
			Addrs:    cfg.Feed.Redis.Addrs,
			Password: cfg.Feed.Redis.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create stream client", zap.Error(err))
		}
		defer client.Close()

		consumer = redisstream.NewConsumer(client, redisstream.Config{
			Stream:   cfg.Feed.Redis.Stream,
			Group:    cfg.Feed.Redis.Group,
			Consumer: cfg.Feed.Redis.Consumer,
			Count:    cfg.Feed.Redis.Count,
			Block:    time.Duration(cfg.Feed.Redis.BlockMS) * time.Millisecond,
		}, svc, logger)
		if err := consumer.EnsureGroup(ctx); err != nil {
			logger.Fatal("Failed to create consumer group", zap.Error(err))
		}
		healthSvc = healthSvc.WithFeed(redisstream.Source, consumer)
	}

	server := chiTransport.NewServer(svc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	if cfg.Feed.HTTP.Enabled {
		server.Routes(r)
	} else {
		r.Get("/health", server.HealthCheck)
		r.Get("/metrics", server.Metrics)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if consumer != nil {
		g.Go(func() error {
			logger.Info("Starting stream consumer",
				zap.String("stream", cfg.Feed.Redis.Stream),
				zap.String("group", cfg.Feed.Redis.Group),
			)
			return consumer.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Stopped with error", zap.Error(err))
		return
	}
	logger.Info("Stopped gracefully")
}

// newStore creates the aggregate store selected by store.driver.
func newStore(ctx context.Context, cfg config.Config) (db.Store, error) {
	lay := cfg.Layout.Layout()
	switch cfg.Store.Driver {
	case config.DriverDynamoDB:
		return dynamo.NewStore(ctx, dynamo.Config{
			Table:    cfg.Store.Table,
			Region:   cfg.Store.Region,
			Endpoint: cfg.Store.Endpoint,
			PK:       lay.AggregatePK,
			SK:       lay.AggregateSK,
		})
	case config.DriverRedis:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Store.Addrs,
			Username: cfg.Store.Username,
			Password: cfg.Store.Password,
			DB:       cfg.Store.DB,
			Key:      cfg.Store.Key,
		})
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
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
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
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
